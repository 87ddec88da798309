package service

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"hiremote_portal/internal/model"
	"hiremote_portal/internal/repository"
	"hiremote_portal/pkg/metrics"
)

type submissionEnv struct {
	db      *gorm.DB
	svc     *SubmissionService
	storage *StorageService
	local   *LocalStorage
	metrics *metrics.Metrics
	people  *people
}

func newSubmissionEnv(t *testing.T) *submissionEnv {
	t.Helper()
	db := setupServiceDB(t)
	storage, local := newTestStorage(t)
	m := metrics.New()
	return &submissionEnv{
		db:      db,
		svc:     NewSubmissionService(repository.NewSubmissionUnitOfWork(db), storage, m, nil),
		storage: storage,
		local:   local,
		metrics: m,
		people:  seedPeople(t, db),
	}
}

func (e *submissionEnv) countSubmissions(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.Submission{}).Count(&n).Error)
	return n
}

func (e *submissionEnv) batchFiles(t *testing.T) []string {
	t.Helper()
	batches, err := e.local.ListBatches(context.Background())
	require.NoError(t, err)
	var keys []string
	for _, b := range batches {
		keys = append(keys, b.Keys...)
	}
	return keys
}

// ==================== SubmitShift ====================

func TestSubmitShift_Success(t *testing.T) {
	env := newSubmissionEnv(t)
	ctx := context.Background()

	sub, err := env.svc.SubmitShift(ctx, env.people.employee, "drawer short $2", multipartFiles(t, shiftUploads()...))
	require.NoError(t, err)

	assert.Equal(t, model.CategoryShift, sub.Category)
	assert.Equal(t, env.people.employee.StoreID, sub.StoreID)
	assert.Equal(t, "Alex Employee", sub.AuthorName)
	require.Len(t, sub.Attachments, 3)

	kinds := map[string]model.MediaKind{}
	for _, a := range sub.Attachments {
		kinds[a.Field] = a.Kind
		assert.Regexp(t, `^20240301183005/`, a.StoredPath)
	}
	assert.Equal(t, model.MediaVideo, kinds["scratcher_video"])
	assert.Equal(t, model.MediaImage, kinds["cash_photo"])
	assert.Equal(t, model.MediaImage, kinds["sales_photo"])

	var payload struct {
		Notes string       `json:"notes"`
		Files []StoredFile `json:"files"`
	}
	require.NoError(t, json.Unmarshal(sub.Payload, &payload))
	assert.Equal(t, "drawer short $2", payload.Notes)
	assert.Len(t, payload.Files, 3)

	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.Submissions.WithLabelValues("shift")))
	assert.Len(t, env.batchFiles(t), 3)
}

func TestSubmitShift_StoredBytesRoundTrip(t *testing.T) {
	env := newSubmissionEnv(t)
	ctx := context.Background()
	uploads := shiftUploads()

	sub, err := env.svc.SubmitShift(ctx, env.people.employee, "", multipartFiles(t, uploads...))
	require.NoError(t, err)

	want := map[string][]byte{}
	for _, u := range uploads {
		want[u.field] = u.content
	}
	for _, a := range sub.Attachments {
		rc, _, _, err := env.svc.Download(ctx, env.people.client, a.StoredPath)
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, want[a.Field], got, a.Field)
	}
}

func TestSubmitShift_MissingFileCreatesNothing(t *testing.T) {
	uploads := shiftUploads()
	for i := range uploads {
		missing := uploads[i].field
		t.Run(missing, func(t *testing.T) {
			env := newSubmissionEnv(t)
			var partial []upload
			for j, u := range uploads {
				if j != i {
					partial = append(partial, u)
				}
			}

			_, err := env.svc.SubmitShift(context.Background(), env.people.employee, "", multipartFiles(t, partial...))
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Equal(t, "All three files are required for end-of-shift upload.", err.Error())
			assert.Zero(t, env.countSubmissions(t))
			assert.Empty(t, env.batchFiles(t))
		})
	}
}

func TestSubmitShift_DisallowedTypeRollsBackWrittenFiles(t *testing.T) {
	env := newSubmissionEnv(t)
	uploads := shiftUploads()
	uploads[2] = upload{"sales_photo", "sales.exe", []byte("MZ")}

	_, err := env.svc.SubmitShift(context.Background(), env.people.employee, "", multipartFiles(t, uploads...))
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "Unsupported file type for sales.exe")

	assert.Zero(t, env.countSubmissions(t))
	assert.Empty(t, env.batchFiles(t))

	entries, err := os.ReadDir(env.local.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSubmitShift_RequiresEmployee(t *testing.T) {
	env := newSubmissionEnv(t)
	for _, u := range []*model.User{env.people.manager, env.people.client} {
		_, err := env.svc.SubmitShift(context.Background(), u, "", multipartFiles(t, shiftUploads()...))
		assert.ErrorIs(t, err, ErrForbidden)
	}
	assert.Zero(t, env.countSubmissions(t))
}

// ==================== SubmitReport ====================

func TestSubmitReport(t *testing.T) {
	env := newSubmissionEnv(t)
	ctx := context.Background()

	sub, err := env.svc.SubmitReport(ctx, env.people.manager, "", "all good", "", nil)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryDaily, sub.Category)
	assert.Equal(t, "all good", sub.Summary)
	assert.Empty(t, sub.Attachments)

	files := multipartFiles(t, upload{ReportFileField, "week 12.pdf", []byte("%PDF-1.4\n%fake")})
	sub, err = env.svc.SubmitReport(ctx, env.people.manager, "Weekly", "", "see attached", files[ReportFileField])
	require.NoError(t, err)
	assert.Equal(t, model.CategoryWeekly, sub.Category)
	require.Len(t, sub.Attachments, 1)
	assert.Equal(t, "week_12.pdf", sub.Attachments[0].OriginalName)
	assert.Equal(t, "application/pdf", sub.Attachments[0].MimeType)
	assert.Equal(t, model.MediaDocument, sub.Attachments[0].Kind)
}

func TestSubmitReport_Validation(t *testing.T) {
	env := newSubmissionEnv(t)
	ctx := context.Background()

	_, err := env.svc.SubmitReport(ctx, env.people.manager, "yearly", "", "", nil)
	assert.True(t, IsValidationError(err))

	_, err = env.svc.SubmitReport(ctx, env.people.manager, "shift", "", "", nil)
	assert.True(t, IsValidationError(err))

	files := multipartFiles(t, upload{ReportFileField, "macro.xlsm", []byte("x")})
	_, err = env.svc.SubmitReport(ctx, env.people.manager, "monthly", "", "", files[ReportFileField])
	assert.True(t, IsValidationError(err))

	_, err = env.svc.SubmitReport(ctx, env.people.employee, "daily", "", "", nil)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.Zero(t, env.countSubmissions(t))
}

// ==================== List 门店隔离 ====================

func (e *submissionEnv) seedListing(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	write := func(author *model.User, category model.Category, at time.Time) {
		s := &model.Submission{AuthorID: author.ID, AuthorName: author.Name, StoreID: author.StoreID, Category: category}
		s.CreatedAt = at
		require.NoError(t, repository.NewSubmissionRepository(e.db).Create(ctx, s))
	}
	write(e.people.employee, model.CategoryShift, base)
	write(e.people.employee, model.CategoryShift, base.Add(24*time.Hour))
	write(e.people.employee2, model.CategoryShift, base.Add(2*time.Hour))
	write(e.people.employee2, model.CategoryShift, base.Add(48*time.Hour))
	write(e.people.manager, model.CategoryDaily, base.Add(3*time.Hour))
	write(e.people.manager, model.CategoryWeekly, base.Add(72*time.Hour))
}

func TestList_ClientAlwaysScopedToOwnStore(t *testing.T) {
	env := newSubmissionEnv(t)
	env.seedListing(t)
	ctx := context.Background()

	queries := []SubmissionQuery{
		{},
		{StoreNumber: "202"},
		{StoreNumber: "H1"},
		{StoreNumber: "202", Employee: "Dana Employee"},
		{Employee: "Dana Employee"},
		{Category: "shift", StoreNumber: "202"},
		{Category: "daily"},
		{Start: "2024-03-01", End: "2024-03-05", StoreNumber: "202"},
		{Start: "2024-03-02"},
		{End: "2024-03-01"},
	}

	for _, viewer := range []*model.User{env.people.client, env.people.client2} {
		for _, q := range queries {
			subs, effective, err := env.svc.List(ctx, viewer, q)
			require.NoError(t, err)
			assert.Equal(t, viewer.StoreNumber(), effective.StoreNumber)
			for _, s := range subs {
				assert.Equal(t, viewer.StoreID, s.StoreID, "viewer=%s query=%+v", viewer.Email, q)
			}
		}
	}

	subs, _, err := env.svc.List(ctx, env.people.client, SubmissionQuery{StoreNumber: "202"})
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}

func TestList_EmployeeSeesOnlyOwn(t *testing.T) {
	env := newSubmissionEnv(t)
	env.seedListing(t)

	subs, effective, err := env.svc.List(context.Background(), env.people.employee2, SubmissionQuery{StoreNumber: "101", Employee: "Alex Employee"})
	require.NoError(t, err)
	assert.Equal(t, "Dana Employee", effective.Employee)
	require.Len(t, subs, 2)
	for _, s := range subs {
		assert.Equal(t, env.people.employee2.ID, s.AuthorID)
	}
}

func TestList_ManagerFilters(t *testing.T) {
	env := newSubmissionEnv(t)
	env.seedListing(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		query SubmissionQuery
		want  int
	}{
		{"全部", SubmissionQuery{}, 6},
		{"门店", SubmissionQuery{StoreNumber: "202"}, 2},
		{"员工", SubmissionQuery{Employee: "Alex Employee"}, 2},
		{"类别", SubmissionQuery{Category: "shift"}, 4},
		{"类别大小写", SubmissionQuery{Category: "Weekly"}, 1},
		{"开始日期", SubmissionQuery{Start: "2024-03-02"}, 3},
		{"结束日期包含当天", SubmissionQuery{End: "2024-03-01"}, 3},
		{"单日", SubmissionQuery{Start: "2024-03-02", End: "2024-03-02"}, 1},
		{"组合", SubmissionQuery{StoreNumber: "101", Category: "shift", End: "2024-03-01"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs, _, err := env.svc.List(ctx, env.people.manager, tt.query)
			require.NoError(t, err)
			assert.Len(t, subs, tt.want)
		})
	}
}

func TestList_NewestFirst(t *testing.T) {
	env := newSubmissionEnv(t)
	env.seedListing(t)

	subs, _, err := env.svc.List(context.Background(), env.people.manager, SubmissionQuery{})
	require.NoError(t, err)
	for i := 1; i < len(subs); i++ {
		assert.False(t, subs[i].CreatedAt.After(subs[i-1].CreatedAt))
	}
}

func TestList_InvalidQuery(t *testing.T) {
	env := newSubmissionEnv(t)
	ctx := context.Background()

	for _, q := range []SubmissionQuery{
		{Category: "quarterly"},
		{Start: "03/01/2024"},
		{End: "yesterday"},
		{Start: "2024-03-05", End: "2024-03-01"},
	} {
		_, _, err := env.svc.List(ctx, env.people.manager, q)
		assert.True(t, IsValidationError(err), "%+v", q)
	}
}

func TestRecentShiftsAndStoreNumbers(t *testing.T) {
	env := newSubmissionEnv(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		s := &model.Submission{AuthorID: env.people.employee.ID, AuthorName: env.people.employee.Name, StoreID: env.people.employee.StoreID, Category: model.CategoryShift}
		s.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, repository.NewSubmissionRepository(env.db).Create(ctx, s))
	}

	recent, err := env.svc.RecentShifts(ctx, env.people.employee, RecentShiftLimit)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	assert.Equal(t, base.Add(6*time.Hour), recent[0].CreatedAt.UTC())

	none, err := env.svc.RecentShifts(ctx, env.people.employee2, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	stores, err := env.svc.StoreNumbers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"101"}, stores)
}

// ==================== 下载 ====================

func TestAuthorizeDownload(t *testing.T) {
	env := newSubmissionEnv(t)
	ctx := context.Background()

	sub, err := env.svc.SubmitShift(ctx, env.people.employee, "", multipartFiles(t, shiftUploads()...))
	require.NoError(t, err)
	key := sub.Attachments[0].StoredPath

	for _, viewer := range []*model.User{env.people.employee, env.people.client, env.people.manager} {
		_, err := env.svc.AuthorizeDownload(ctx, viewer, key)
		assert.NoError(t, err, viewer.Email)
	}
	for _, viewer := range []*model.User{env.people.employee2, env.people.client2} {
		_, err := env.svc.AuthorizeDownload(ctx, viewer, key)
		assert.ErrorIs(t, err, ErrForbidden, viewer.Email)
	}

	_, err = env.svc.AuthorizeDownload(ctx, env.people.manager, "20240301183005/unknown.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDownload_RejectsTraversal(t *testing.T) {
	env := newSubmissionEnv(t)
	ctx := context.Background()

	outside := filepath.Join(t.TempDir(), "passwd")
	require.NoError(t, os.WriteFile(outside, []byte("root:x:0:0"), 0o644))

	for _, key := range []string{
		"../passwd",
		"../../../../etc/passwd",
		"20240301183005/../../passwd",
		outside,
		"/etc/passwd",
		"..\\..\\passwd",
		"a/%2e%2e/b",
	} {
		_, _, _, err := env.svc.Download(ctx, env.people.manager, key)
		require.Error(t, err, key)
	}
	assert.GreaterOrEqual(t, testutil.ToFloat64(env.metrics.Downloads.WithLabelValues("rejected")), float64(6))
}

func TestDownload_SymlinkEscapeRegisteredAsAttachment(t *testing.T) {
	env := newSubmissionEnv(t)
	ctx := context.Background()

	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))
	dir := filepath.Join(env.local.Root(), "20240101000000")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	if err := os.Symlink(outside, filepath.Join(dir, "secret.txt")); err != nil {
		t.Skipf("无法创建符号链接: %v", err)
	}

	// 即使数据库里登记了该路径，解析后越界仍然拒绝
	s := &model.Submission{
		AuthorID: env.people.manager.ID, AuthorName: env.people.manager.Name, StoreID: env.people.manager.StoreID,
		Category:    model.CategoryDaily,
		Attachments: []model.Attachment{{Field: ReportFileField, StoredPath: "20240101000000/secret.txt", Kind: model.MediaDocument}},
	}
	require.NoError(t, repository.NewSubmissionRepository(env.db).Create(ctx, s))

	_, _, _, err := env.svc.Download(ctx, env.people.manager, "20240101000000/secret.txt")
	assert.ErrorIs(t, err, ErrPathEscapes)
}
