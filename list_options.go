package main

import (
	"strings"

	"gorm.io/gorm"
)

type SortType string

const (
	SortTypeAscending  SortType = "asc"
	SortTypeDescending SortType = "desc"
)

func (s SortType) ToString() string {
	return strings.ToUpper(string(s))
}

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// ListOptions pages list queries. A zero limit selects DefaultLimit, and
// limits above MaxLimit are clamped.
type ListOptions struct {
	Offset uint32    `json:"offset,omitempty"`
	Limit  uint32    `json:"limit,omitempty"`
	Sort   *SortType `json:"sort,omitempty"`
}

func applyListOptions(db *gorm.DB, sortBy string, defaultSort SortType, options *ListOptions) *gorm.DB {
	sort := defaultSort
	if options != nil && options.Sort != nil {
		sort = *options.Sort
	}
	db = db.Order(sortBy + " " + sort.ToString())

	offset, limit := 0, DefaultLimit
	if options != nil {
		offset = int(options.Offset)
		if options.Limit > 0 {
			limit = int(options.Limit)
		}
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return db.Offset(offset).Limit(limit)
}
