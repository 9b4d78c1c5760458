package service

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/noah-isme/sales-eval-api/internal/models"
	appErrors "github.com/noah-isme/sales-eval-api/pkg/errors"
)

func newPagination(page, pageSize, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
}

func makeCacheKey(prefix string, parts ...string) string {
	var builder strings.Builder
	builder.Grow(len(prefix) + len(parts)*16)
	builder.WriteString(prefix)
	for _, part := range parts {
		builder.WriteByte(':')
		builder.WriteString(strings.ReplaceAll(part, ":", "|"))
	}
	return builder.String()
}

func boolKey(v *bool) string {
	if v == nil {
		return "any"
	}
	return strconv.FormatBool(*v)
}

// notFoundOr maps sql.ErrNoRows to a not found error and anything else to an internal one.
func notFoundOr(err error, resource, action string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, resource+" not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to "+action)
}

func validationError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

func internalError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func strPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
