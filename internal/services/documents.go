package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"reqtrack/internal/audit"
	"reqtrack/internal/models"
)

const clonePrefix = "Copy of "

type DocumentRequirementInput struct {
	Category              string `json:"category"`
	Requirement           string `json:"requirement"`
	Product               string `json:"product"`
	DocLink               string `json:"doc_link"`
	TenantLink            string `json:"tenant_link"`
	OriginalRequirementID *uint  `json:"original_requirement_id"`
	Order                 *int   `json:"order"`
}

type DocumentInput struct {
	Name         string                     `json:"name"`
	Description  string                     `json:"description"`
	Requirements []DocumentRequirementInput `json:"requirements"`
}

// Documents manages success criteria documents and their ordered requirement rows.
// Only the owner may read or change a document.
type Documents struct {
	db    *gorm.DB
	audit *audit.Recorder
	lg    *zap.SugaredLogger
	now   func() time.Time
}

func NewDocuments(db *gorm.DB, rec *audit.Recorder, lg *zap.SugaredLogger) *Documents {
	return &Documents{db: db, audit: rec, lg: lg, now: time.Now}
}

// WithClock replaces the timestamp source.
func (s *Documents) WithClock(now func() time.Time) *Documents {
	s.now = now
	return s
}

func (s *Documents) Create(ctx context.Context, actor Actor, in DocumentInput) (models.Document, error) {
	name, rows, err := validateDocument(in)
	if err != nil {
		return models.Document{}, err
	}
	now := s.now().UTC()
	doc := models.Document{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		OwnerID:     actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	var out models.Document
	err = s.tx(ctx, "create_scd", func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&doc).Error; err != nil {
			return err
		}
		if err := insertRows(tx, doc.ID, rows); err != nil {
			return err
		}
		if err := s.audit.Record(tx, audit.Entry{
			Actor: actor.Email, Action: "create_scd", IP: actor.IP,
			Details: fmt.Sprintf("Created SCD id=%d, name=%s", doc.ID, doc.Name),
		}); err != nil {
			return err
		}
		out, err = load(tx, doc.ID)
		return err
	})
	return out, err
}

// List returns the caller's documents, newest first.
func (s *Documents) List(ctx context.Context, actor Actor) ([]models.Document, error) {
	var docs []models.Document
	err := s.db.WithContext(ctx).
		Preload("Owner").
		Preload("Requirements", orderedRows).
		Where("owner_id = ?", actor.UserID).
		Order("created_at desc").Order("id desc").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	for i := range docs {
		SortRequirements(docs[i].Requirements)
	}
	return docs, nil
}

func (s *Documents) Get(ctx context.Context, actor Actor, id uint) (models.Document, error) {
	return loadOwned(s.db.WithContext(ctx), actor, id)
}

// Update replaces the document's name, description and whole requirement set.
func (s *Documents) Update(ctx context.Context, actor Actor, id uint, in DocumentInput) (models.Document, error) {
	name, rows, err := validateDocument(in)
	if err != nil {
		return models.Document{}, err
	}
	var out models.Document
	err = s.tx(ctx, "update_scd", func(tx *gorm.DB) error {
		if _, err := loadOwned(tx, actor, id); err != nil {
			return err
		}
		if err := tx.Model(&models.Document{ID: id}).Updates(map[string]any{
			"name":        name,
			"description": strings.TrimSpace(in.Description),
			"updated_at":  s.now().UTC(),
		}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", id).Delete(&models.DocumentRequirement{}).Error; err != nil {
			return err
		}
		if err := insertRows(tx, id, rows); err != nil {
			return err
		}
		if err := s.audit.Record(tx, audit.Entry{
			Actor: actor.Email, Action: "update_scd", IP: actor.IP,
			Details: fmt.Sprintf("Updated SCD id=%d, name=%s, requirements=%d", id, name, len(rows)),
		}); err != nil {
			return err
		}
		out, err = load(tx, id)
		return err
	})
	return out, err
}

// AppendRequirements snapshot-copies master requirements onto the end of the
// document. Every id must exist or nothing is appended.
func (s *Documents) AppendRequirements(ctx context.Context, actor Actor, id uint, requirementIDs []uint) (models.Document, error) {
	ids := dedupeIDs(requirementIDs)
	if len(ids) == 0 {
		return models.Document{}, validationf("requirement_ids must not be empty")
	}
	var out models.Document
	err := s.tx(ctx, "add_requirements_to_scd", func(tx *gorm.DB) error {
		if _, err := loadOwned(tx, actor, id); err != nil {
			return err
		}
		var masters []models.Requirement
		if err := tx.Where("id IN ?", ids).Find(&masters).Error; err != nil {
			return err
		}
		byID := make(map[uint]models.Requirement, len(masters))
		for _, m := range masters {
			byID[m.ID] = m
		}
		var missing []uint
		for _, rid := range ids {
			if _, ok := byID[rid]; !ok {
				missing = append(missing, rid)
			}
		}
		if len(missing) > 0 {
			return validationf("requirements not found: %v", missing)
		}

		var maxOrder int
		if err := tx.Model(&models.DocumentRequirement{}).
			Where("document_id = ?", id).
			Select("COALESCE(MAX(sort_order), -1)").
			Scan(&maxOrder).Error; err != nil {
			return err
		}
		rows := make([]models.DocumentRequirement, 0, len(ids))
		for i, rid := range ids {
			m := byID[rid]
			orig := m.ID
			rows = append(rows, models.DocumentRequirement{
				DocumentID:            id,
				Category:              m.Category,
				Requirement:           m.Requirement,
				Product:               m.Product,
				DocLink:               m.DocLink,
				TenantLink:            m.TenantLink,
				OriginalRequirementID: &orig,
				Order:                 maxOrder + 1 + i,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}
		if err := touch(tx, id, s.now()); err != nil {
			return err
		}
		if err := s.audit.Record(tx, audit.Entry{
			Actor: actor.Email, Action: "add_requirements_to_scd", IP: actor.IP,
			Details: fmt.Sprintf("Added requirements ids=%v to SCD id=%d", ids, id),
		}); err != nil {
			return err
		}
		var err error
		out, err = load(tx, id)
		return err
	})
	return out, err
}

// Clone deep-copies a document under a new id owned by the caller.
func (s *Documents) Clone(ctx context.Context, actor Actor, id uint) (models.Document, error) {
	var out models.Document
	err := s.tx(ctx, "clone_scd", func(tx *gorm.DB) error {
		src, err := loadOwned(tx, actor, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		clone := models.Document{
			Name:        clonePrefix + src.Name,
			Description: src.Description,
			OwnerID:     actor.UserID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Omit(clause.Associations).Create(&clone).Error; err != nil {
			return err
		}
		if len(src.Requirements) > 0 {
			rows := make([]models.DocumentRequirement, 0, len(src.Requirements))
			for _, r := range src.Requirements {
				r.ID = 0
				r.DocumentID = clone.ID
				if r.OriginalRequirementID != nil {
					orig := *r.OriginalRequirementID
					r.OriginalRequirementID = &orig
				}
				rows = append(rows, r)
			}
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		if err := s.audit.Record(tx, audit.Entry{
			Actor: actor.Email, Action: "clone_scd", IP: actor.IP,
			Details: fmt.Sprintf("Cloned SCD id=%d into id=%d", src.ID, clone.ID),
		}); err != nil {
			return err
		}
		out, err = load(tx, clone.ID)
		return err
	})
	return out, err
}

func (s *Documents) Delete(ctx context.Context, actor Actor, id uint) error {
	return s.tx(ctx, "delete_scd", func(tx *gorm.DB) error {
		doc, err := loadOwned(tx, actor, id)
		if err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", id).Delete(&models.DocumentRequirement{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Document{}, id).Error; err != nil {
			return err
		}
		return s.audit.Record(tx, audit.Entry{
			Actor: actor.Email, Action: "delete_scd", IP: actor.IP,
			Details: fmt.Sprintf("Deleted SCD id=%d, name=%s", id, doc.Name),
		})
	})
}

// SortRequirements orders rows by order value, then id. Storage order is not
// relied upon.
func SortRequirements(rows []models.DocumentRequirement) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Order != rows[j].Order {
			return rows[i].Order < rows[j].Order
		}
		return rows[i].ID < rows[j].ID
	})
}

func validateDocument(in DocumentInput) (string, []DocumentRequirementInput, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", nil, validationf("name is required")
	}
	rows := make([]DocumentRequirementInput, 0, len(in.Requirements))
	for i, r := range in.Requirements {
		r.Category = strings.TrimSpace(r.Category)
		r.Requirement = strings.TrimSpace(r.Requirement)
		if r.Category == "" || r.Requirement == "" {
			return "", nil, validationf("requirements[%d]: category and requirement are required", i)
		}
		rows = append(rows, r)
	}
	return name, rows, nil
}

// insertRows stores rows using the supplied order or, when absent, the row's
// index in the input.
func insertRows(tx *gorm.DB, docID uint, in []DocumentRequirementInput) error {
	if len(in) == 0 {
		return nil
	}
	rows := make([]models.DocumentRequirement, 0, len(in))
	for i, r := range in {
		order := i
		if r.Order != nil {
			order = *r.Order
		}
		rows = append(rows, models.DocumentRequirement{
			DocumentID:            docID,
			Category:              r.Category,
			Requirement:           r.Requirement,
			Product:               strings.TrimSpace(r.Product),
			DocLink:               strings.TrimSpace(r.DocLink),
			TenantLink:            strings.TrimSpace(r.TenantLink),
			OriginalRequirementID: r.OriginalRequirementID,
			Order:                 order,
		})
	}
	return tx.Create(&rows).Error
}

func touch(tx *gorm.DB, id uint, now time.Time) error {
	return tx.Model(&models.Document{ID: id}).Update("updated_at", now.UTC()).Error
}

func orderedRows(db *gorm.DB) *gorm.DB {
	return db.Order("sort_order asc").Order("id asc")
}

func load(tx *gorm.DB, id uint) (models.Document, error) {
	var doc models.Document
	err := tx.Preload("Owner").Preload("Requirements", orderedRows).First(&doc, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return doc, fmt.Errorf("%w: document %d", ErrNotFound, id)
	}
	if err != nil {
		return doc, err
	}
	SortRequirements(doc.Requirements)
	return doc, nil
}

func loadOwned(tx *gorm.DB, actor Actor, id uint) (models.Document, error) {
	doc, err := load(tx, id)
	if err != nil {
		return doc, err
	}
	if doc.OwnerID != actor.UserID {
		return models.Document{}, fmt.Errorf("%w: document %d is owned by another user", ErrForbidden, id)
	}
	return doc, nil
}

func dedupeIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *Documents) tx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	return rolledBack(s.lg, op, s.audit.Transaction(s.db.WithContext(ctx), fn))
}
