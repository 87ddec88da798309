package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hiremote_portal/internal/model"
)

// StoreRepository 门店仓库接口
type StoreRepository interface {
	// Ensure 按编号幂等创建门店，已存在时返回现有记录
	Ensure(ctx context.Context, number, name string) (*model.Store, error)
	GetByID(ctx context.Context, id int64) (*model.Store, error)
	GetByNumber(ctx context.Context, number string) (*model.Store, error)
	List(ctx context.Context) ([]model.Store, error)
}

type storeRepository struct {
	db *gorm.DB
}

// NewStoreRepository 创建门店仓库
func NewStoreRepository(db *gorm.DB) StoreRepository {
	return &storeRepository{db: db}
}

func (r *storeRepository) Ensure(ctx context.Context, number, name string) (*model.Store, error) {
	store := &model.Store{Number: number, Name: name}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "number"}}, DoNothing: true}).
		Create(store).Error
	if err != nil {
		return nil, err
	}
	return r.GetByNumber(ctx, number)
}

func (r *storeRepository) GetByID(ctx context.Context, id int64) (*model.Store, error) {
	var store model.Store
	err := r.db.WithContext(ctx).First(&store, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &store, nil
}

func (r *storeRepository) GetByNumber(ctx context.Context, number string) (*model.Store, error) {
	var store model.Store
	err := r.db.WithContext(ctx).Where("number = ?", number).First(&store).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &store, nil
}

func (r *storeRepository) List(ctx context.Context) ([]model.Store, error) {
	var stores []model.Store
	err := r.db.WithContext(ctx).Order("number ASC").Find(&stores).Error
	return stores, err
}
