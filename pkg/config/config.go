package config

import (
	"github.com/qianqian121/GIFT-Grab/internal/config"
	"github.com/qianqian121/GIFT-Grab/pkg/configdef"
)

type Resolver interface {
	configdef.Resolver
}

type Creator interface {
	configdef.Creator
}

type CreateResolver interface {
	configdef.CreateResolver
}

func DefaultResolver() Resolver {
	return config.DefaultResolver()
}

func DefaultCreator() Creator {
	return config.DefaultCreator()
}

func DefaultCreateResolver() CreateResolver {
	return config.DefaultCreateResolver()
}

func FileResolver(path string) Resolver {
	return config.FileResolver(path)
}
