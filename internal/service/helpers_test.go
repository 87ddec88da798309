package service

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"hiremote_portal/internal/model"
	"hiremote_portal/internal/repository"
	"hiremote_portal/pkg/database"
)

// ==================== 测试辅助 ====================

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.InitDB(database.Options{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "service.db"),
		LogLevel: logger.Silent,
	}, model.All()...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type people struct {
	employee  *model.User // 101
	employee2 *model.User // 202
	manager   *model.User // H1
	client    *model.User // 101
	client2   *model.User // 202
}

func seedPeople(t *testing.T, db *gorm.DB) *people {
	t.Helper()
	ctx := context.Background()
	stores := repository.NewStoreRepository(db)
	users := repository.NewUserRepository(db)

	mk := func(name, email string, role model.UserRole, store string) *model.User {
		s, err := stores.Ensure(ctx, store, "Store "+store)
		require.NoError(t, err)
		u := &model.User{Name: name, Email: email, Password: "x", Role: role, StoreID: s.ID}
		require.NoError(t, users.Create(ctx, u))
		u.Store = s
		return u
	}

	return &people{
		employee:  mk("Alex Employee", "alex@example.com", model.RoleEmployee, "101"),
		employee2: mk("Dana Employee", "dana@example.com", model.RoleEmployee, "202"),
		manager:   mk("Bianca Manager", "bianca@example.com", model.RoleManager, "H1"),
		client:    mk("Chris Client", "chris@example.com", model.RoleClient, "101"),
		client2:   mk("Casey Client", "casey@example.com", model.RoleClient, "202"),
	}
}

type upload struct {
	field    string
	filename string
	content  []byte
}

// multipartFiles 构造真实的 multipart.FileHeader
func multipartFiles(t *testing.T, uploads ...upload) map[string]*multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, u := range uploads {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+u.field+`"; filename="`+u.filename+`"`)
		h.Set("Content-Type", "application/octet-stream")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(u.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	files := make(map[string]*multipart.FileHeader)
	for field, fhs := range form.File {
		if len(fhs) > 0 {
			files[field] = fhs[0]
		}
	}
	return files
}

func shiftUploads() []upload {
	return []upload{
		{"scratcher_video", "scratchers.mp4", []byte("\x00\x00\x00\x18ftypmp42fake video")},
		{"cash_photo", "cash drawer.jpg", []byte("\xff\xd8\xff\xe0fake jpeg")},
		{"sales_photo", "sales.png", append(append([]byte{}, pngHeader...), 1, 2, 3)},
	}
}
