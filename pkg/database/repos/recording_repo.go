package repos

import (
	"github.com/qianqian121/GIFT-Grab/pkg/database/dbconn"
	"github.com/qianqian121/GIFT-Grab/pkg/database/models"
	"github.com/tauraamui/xerror"
)

type RecordingRepository struct {
	DB dbconn.GormWrapper
}

func (r *RecordingRepository) Create(rec *models.Recording) error {
	return r.DB.Create(rec).Error()
}

func (r *RecordingRepository) FindByUUID(uuid string) (models.Recording, error) {
	rec := models.Recording{}
	if err := r.DB.Where("uuid = ?", uuid).First(&rec).Error(); err != nil {
		return rec, xerror.Errorf("recording of uuid %s not found", uuid)
	}

	return rec, nil
}

func (r *RecordingRepository) FindByPath(path string) ([]models.Recording, error) {
	recs := []models.Recording{}
	if err := r.DB.Where("path = ?", path).Order("finished_at desc").Find(&recs).Error(); err != nil {
		return nil, xerror.Errorf("unable to look up recordings of %s: %w", path, err)
	}

	return recs, nil
}

// List returns every recording, most recently finished first.
func (r *RecordingRepository) List() ([]models.Recording, error) {
	recs := []models.Recording{}
	if err := r.DB.Order("finished_at desc").Find(&recs).Error(); err != nil {
		return nil, xerror.Errorf("unable to list recordings: %w", err)
	}

	return recs, nil
}
