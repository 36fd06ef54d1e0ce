package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parsepoint/parsepoint-api/internal/models"
	appErrors "github.com/parsepoint/parsepoint-api/pkg/errors"
)

func stubPageCounter(count int, err error) pageCounter {
	return func([]byte) (int, error) { return count, err }
}

func TestAdmissionRejectsStarterTier(t *testing.T) {
	svc := NewAdmissionService(AdmissionConfig{}, stubPageCounter(1, nil), nil)
	_, err := svc.Validate([]CandidateFile{{Filename: "a.pdf", MimeType: "application/pdf", Size: 10}}, models.TierStarter)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrTierForbidden.Code, appErrors.FromError(err).Code)
}

func TestAdmissionRejectsEmptyAndOversizedBatches(t *testing.T) {
	svc := NewAdmissionService(AdmissionConfig{}, stubPageCounter(1, nil), nil)

	_, err := svc.Validate(nil, models.TierPlus)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	files := make([]CandidateFile, models.TierPlus.Limits().MaxBatchFiles+1)
	for i := range files {
		files[i] = CandidateFile{Filename: fmt.Sprintf("f%d.pdf", i), MimeType: "application/pdf", Size: 10}
	}
	_, err = svc.Validate(files, models.TierPlus)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAdmissionCollectsEveryViolation(t *testing.T) {
	svc := NewAdmissionService(AdmissionConfig{MaxFileSizeBytes: 100}, stubPageCounter(1, nil), nil)
	files := []CandidateFile{
		{Filename: "ok.pdf", MimeType: "application/pdf", Size: 50},
		{Filename: "big.pdf", MimeType: "application/pdf", Size: 500},
		{Filename: "sheet.xlsx", MimeType: "application/vnd.ms-excel", Size: 50},
		{Filename: "huge.exe", MimeType: "application/octet-stream", Size: 900},
	}

	_, err := svc.Validate(files, models.TierGrowth)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	// big.pdf size, sheet.xlsx type, huge.exe type and size
	require.Len(t, appErr.Details, 4)
	for _, name := range []string{"big.pdf", "sheet.xlsx", "huge.exe"} {
		found := false
		for _, d := range appErr.Details {
			if len(d) >= len(name) && d[:len(name)] == name {
				found = true
			}
		}
		require.True(t, found, "expected a detail naming %s", name)
	}
}

func TestAdmissionPageCountFailureIsPerFile(t *testing.T) {
	calls := 0
	counter := func(content []byte) (int, error) {
		calls++
		if string(content) == "broken" {
			return 0, errors.New("corrupt xref")
		}
		return 4, nil
	}
	svc := NewAdmissionService(AdmissionConfig{}, counter, nil)

	files := []CandidateFile{
		{Filename: "good.pdf", MimeType: "application/pdf", Size: 10, Content: []byte("fine")},
		{Filename: "bad.pdf", MimeType: "application/pdf", Size: 10, Content: []byte("broken")},
		{Filename: "scan.png", MimeType: "image/png", Size: 10},
	}
	admitted, err := svc.Validate(files, models.TierPlus)
	require.NoError(t, err)
	require.Len(t, admitted, 3)
	require.Equal(t, 2, calls, "images never hit the page counter")

	require.Equal(t, 4, admitted[0].PageCount)
	require.NoError(t, admitted[0].PageCountErr)
	require.Error(t, admitted[1].PageCountErr)
	require.Equal(t, 1, admitted[2].PageCount)
}
