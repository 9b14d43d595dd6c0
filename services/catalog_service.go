package services

import (
	"context"
	"errors"

	"trivianight/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CatalogService struct {
	db *gorm.DB
}

func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{db: db}
}

// Catalog is the read-only structure the engine consumes: every category
// plus its questions keyed by category slug. Loaded once per request path
// that needs it.
type Catalog struct {
	Categories []models.Category            `json:"categories"`
	Questions  map[string][]models.Question `json:"questions"`
}

func (c *Catalog) CategoryName(slug string) string {
	for i := range c.Categories {
		if c.Categories[i].Slug == slug {
			return c.Categories[i].Name
		}
	}
	return slug
}

type CreateCategoryRequest struct {
	Slug      string                  `json:"slug" binding:"required"`
	Name      string                  `json:"name" binding:"required"`
	ImageURL  string                  `json:"image_url"`
	Questions []CreateQuestionRequest `json:"questions"`
}

type CreateQuestionRequest struct {
	Text       string `json:"text" binding:"required"`
	Answer     string `json:"answer" binding:"required"`
	Difficulty string `json:"difficulty" binding:"required,oneof=easy medium hard"`
	ImageURL   string `json:"image_url"`
}

func (s *CatalogService) CreateCategory(ctx context.Context, req *CreateCategoryRequest) (*models.Category, error) {
	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	category := models.Category{
		Slug:     req.Slug,
		Name:     req.Name,
		ImageURL: req.ImageURL,
	}

	if err := tx.Create(&category).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	for _, qReq := range req.Questions {
		question := models.Question{
			PublicID:   uuid.NewString(),
			CategoryID: category.ID,
			Text:       qReq.Text,
			Answer:     qReq.Answer,
			Difficulty: qReq.Difficulty,
			ImageURL:   qReq.ImageURL,
		}
		if err := tx.Create(&question).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return s.GetCategoryBySlug(ctx, category.Slug)
}

func (s *CatalogService) AddQuestions(ctx context.Context, categoryID uint, reqs []CreateQuestionRequest) (*models.Category, error) {
	var category models.Category
	if err := s.db.WithContext(ctx).First(&category, categoryID).Error; err != nil {
		return nil, errors.New("category not found")
	}

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	for _, qReq := range reqs {
		question := models.Question{
			PublicID:   uuid.NewString(),
			CategoryID: category.ID,
			Text:       qReq.Text,
			Answer:     qReq.Answer,
			Difficulty: qReq.Difficulty,
			ImageURL:   qReq.ImageURL,
		}
		if err := tx.Create(&question).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return s.GetCategoryBySlug(ctx, category.Slug)
}

func (s *CatalogService) GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error) {
	var category models.Category
	err := s.db.WithContext(ctx).Where("slug = ?", slug).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("questions.id")
		}).
		First(&category).Error
	if err != nil {
		return nil, errors.New("category not found")
	}
	return &category, nil
}

func (s *CatalogService) GetCatalog(ctx context.Context) (*Catalog, error) {
	var categories []models.Category
	err := s.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("questions.id")
		}).
		Order("name").
		Find(&categories).Error
	if err != nil {
		return nil, err
	}

	catalog := &Catalog{
		Categories: categories,
		Questions:  make(map[string][]models.Question, len(categories)),
	}
	for i := range categories {
		catalog.Questions[categories[i].Slug] = categories[i].Questions
	}
	return catalog, nil
}

func (s *CatalogService) DeleteCategory(ctx context.Context, categoryID uint) error {
	var category models.Category
	if err := s.db.WithContext(ctx).First(&category, categoryID).Error; err != nil {
		return errors.New("category not found")
	}

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Where("category_id = ?", categoryID).Delete(&models.Question{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Delete(&category).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
