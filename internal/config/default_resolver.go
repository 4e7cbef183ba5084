package config

import "github.com/qianqian121/GIFT-Grab/pkg/configdef"

func DefaultResolver() configdef.Resolver {
	return defaultCreateResolver{}
}

func DefaultCreator() configdef.Creator {
	return defaultCreateResolver{}
}

func DefaultCreateResolver() configdef.CreateResolver {
	return defaultCreateResolver{}
}

type defaultCreateResolver struct{}

func (d defaultCreateResolver) Resolve() (configdef.Values, error) {
	return load()
}

func (d defaultCreateResolver) Create() error {
	return create()
}

// FileResolver loads the config file at path instead of resolving its
// location.
func FileResolver(path string) configdef.Resolver {
	return fileResolver(path)
}

type fileResolver string

func (f fileResolver) Resolve() (configdef.Values, error) {
	return loadFrom(string(f))
}
