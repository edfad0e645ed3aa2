package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"reqtrack/internal/audit"
	"reqtrack/internal/models"
)

type RequirementInput struct {
	Category    string `json:"category"`
	Requirement string `json:"requirement"`
	Product     string `json:"product"`
	DocLink     string `json:"doc_link"`
	TenantLink  string `json:"tenant_link"`
}

func (in RequirementInput) normalized() RequirementInput {
	in.Category = strings.TrimSpace(in.Category)
	in.Requirement = strings.TrimSpace(in.Requirement)
	in.Product = strings.TrimSpace(in.Product)
	in.DocLink = strings.TrimSpace(in.DocLink)
	in.TenantLink = strings.TrimSpace(in.TenantLink)
	return in
}

func (in RequirementInput) validate() error {
	if in.Category == "" || in.Requirement == "" {
		return validationf("category and requirement are required")
	}
	return nil
}

// MassEdit holds the fields a mass edit may change; empty values are left alone.
type MassEdit struct {
	Category string `json:"category"`
	Product  string `json:"product"`
}

type Requirements struct {
	db    *gorm.DB
	audit *audit.Recorder
	lg    *zap.SugaredLogger
	now   func() time.Time
}

func NewRequirements(db *gorm.DB, rec *audit.Recorder, lg *zap.SugaredLogger) *Requirements {
	return &Requirements{db: db, audit: rec, lg: lg, now: time.Now}
}

func (s *Requirements) List(ctx context.Context) ([]models.Requirement, error) {
	var reqs []models.Requirement
	err := s.db.WithContext(ctx).Order("id asc").Find(&reqs).Error
	return reqs, err
}

func (s *Requirements) Get(ctx context.Context, id uint) (models.Requirement, error) {
	var r models.Requirement
	err := s.db.WithContext(ctx).First(&r, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r, fmt.Errorf("%w: requirement %d", ErrNotFound, id)
	}
	return r, err
}

func (s *Requirements) Create(ctx context.Context, actor Actor, in RequirementInput) (models.Requirement, error) {
	in = in.normalized()
	if err := in.validate(); err != nil {
		return models.Requirement{}, err
	}
	now := s.now().UTC()
	r := newRequirement(in, actor.Email, now)
	err := s.tx(ctx, "add_requirement", func(tx *gorm.DB) error {
		if err := tx.Create(&r).Error; err != nil {
			return err
		}
		return s.audit.Record(tx, audit.Entry{
			Actor: actor.Email, Action: "add_requirement", IP: actor.IP,
			Details: fmt.Sprintf("Added requirement id=%d, category=%s", r.ID, r.Category),
		})
	})
	return r, err
}

func (s *Requirements) Update(ctx context.Context, actor Actor, id uint, in RequirementInput) (models.Requirement, error) {
	in = in.normalized()
	if err := in.validate(); err != nil {
		return models.Requirement{}, err
	}
	var r models.Requirement
	err := s.tx(ctx, "edit_requirement", func(tx *gorm.DB) error {
		if err := tx.First(&r, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: requirement %d", ErrNotFound, id)
			}
			return err
		}
		now := s.now().UTC()
		r.Category, r.Requirement, r.Product, r.DocLink, r.TenantLink = in.Category, in.Requirement, in.Product, in.DocLink, in.TenantLink
		r.UpdatedAt, r.UpdatedBy = &now, actor.Email
		if err := tx.Save(&r).Error; err != nil {
			return err
		}
		return s.audit.Record(tx, audit.Entry{
			Actor: actor.Email, Action: "edit_requirement", IP: actor.IP,
			Details: fmt.Sprintf("Edited requirement id=%d, category=%s", r.ID, r.Category),
		})
	})
	return r, err
}

func (s *Requirements) Delete(ctx context.Context, actor Actor, id uint) error {
	return s.tx(ctx, "delete_requirement", func(tx *gorm.DB) error {
		res := tx.Delete(&models.Requirement{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: requirement %d", ErrNotFound, id)
		}
		return s.audit.Record(tx, audit.Entry{
			Actor: actor.Email, Action: "delete_requirement", IP: actor.IP,
			Details: fmt.Sprintf("Deleted requirement id=%d", id),
		})
	})
}

// BulkImport inserts every CSV row or none of them.
func (s *Requirements) BulkImport(ctx context.Context, actor Actor, r io.Reader) (int, error) {
	rows, err := ParseRequirementsCSV(r)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	now := s.now().UTC()
	reqs := make([]models.Requirement, 0, len(rows))
	for _, in := range rows {
		reqs = append(reqs, newRequirement(in, actor.Email, now))
	}
	err = s.tx(ctx, "bulk_upload_requirements", func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(&reqs, 200).Error; err != nil {
			return err
		}
		return s.audit.Record(tx, audit.Entry{
			Actor: actor.Email, Action: "bulk_upload_requirements", IP: actor.IP,
			Details: fmt.Sprintf("Bulk uploaded %d requirements", len(reqs)),
		})
	})
	if err != nil {
		return 0, err
	}
	return len(reqs), nil
}

// MassEdit applies the non-empty patch fields to every existing id; unknown ids are ignored.
func (s *Requirements) MassEdit(ctx context.Context, actor Actor, ids []uint, patch MassEdit) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := s.now().UTC()
	updates := map[string]any{"updated_at": now, "updated_by": actor.Email}
	if v := strings.TrimSpace(patch.Category); v != "" {
		updates["category"] = v
	}
	if v := strings.TrimSpace(patch.Product); v != "" {
		updates["product"] = v
	}
	var updated int64
	err := s.tx(ctx, "mass_edit_requirements", func(tx *gorm.DB) error {
		res := tx.Model(&models.Requirement{}).Where("id IN ?", ids).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		updated = res.RowsAffected
		return s.audit.Record(tx, audit.Entry{
			Actor: actor.Email, Action: "mass_edit_requirements", IP: actor.IP,
			Details: fmt.Sprintf("Mass edited requirements ids=%v fields=%s updated=%d", ids, patchFields(patch), updated),
		})
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// MassDelete deletes every existing id and reports how many rows went away.
func (s *Requirements) MassDelete(ctx context.Context, actor Actor, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var deleted int64
	err := s.tx(ctx, "mass_delete_requirements", func(tx *gorm.DB) error {
		res := tx.Where("id IN ?", ids).Delete(&models.Requirement{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return s.audit.Record(tx, audit.Entry{
			Actor: actor.Email, Action: "mass_delete_requirements", IP: actor.IP,
			Details: fmt.Sprintf("Mass deleted requirements ids=%v deleted=%d", ids, deleted),
		})
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *Requirements) Export(ctx context.Context, w io.Writer) error {
	reqs, err := s.List(ctx)
	if err != nil {
		return err
	}
	return WriteRequirementsCSV(w, reqs)
}

func newRequirement(in RequirementInput, by string, now time.Time) models.Requirement {
	return models.Requirement{
		Category:    in.Category,
		Requirement: in.Requirement,
		Product:     in.Product,
		DocLink:     in.DocLink,
		TenantLink:  in.TenantLink,
		CreatedAt:   now,
		CreatedBy:   by,
		UpdatedAt:   &now,
		UpdatedBy:   by,
	}
}

func patchFields(p MassEdit) string {
	var fields []string
	if strings.TrimSpace(p.Category) != "" {
		fields = append(fields, "category")
	}
	if strings.TrimSpace(p.Product) != "" {
		fields = append(fields, "product")
	}
	if len(fields) == 0 {
		return "none"
	}
	return strings.Join(fields, ",")
}

func (s *Requirements) tx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	return rolledBack(s.lg, op, s.audit.Transaction(s.db.WithContext(ctx), fn))
}
