package server

import (
	"fmt"
	"net/http"
	"testing"

	billingperioddomain "github.com/shipyardhq/shipyard/internal/billingperiod/domain"
	ownerdomain "github.com/shipyardhq/shipyard/internal/owner/domain"
	usagedomain "github.com/shipyardhq/shipyard/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"invalid usage type", usagedomain.ErrInvalidUsageType, http.StatusBadRequest, "validation_error"},
		{"invalid owner", ownerdomain.ErrInvalidOwner, http.StatusBadRequest, "validation_error"},
		{"wrapped run not found", fmt.Errorf("record build minutes: run 42: %w", usagedomain.ErrRunNotFound), http.StatusNotFound, "not_found"},
		{"owner not found", ownerdomain.ErrOwnerNotFound, http.StatusNotFound, "not_found"},
		{"period not found", billingperioddomain.ErrPeriodNotFound, http.StatusNotFound, "not_found"},
		{"gorm record not found", gorm.ErrRecordNotFound, http.StatusNotFound, "not_found"},
		{"unclassified", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantType, payload.Type)
		})
	}
}
