package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduaventuras/apiserver/internal/store"
	"github.com/eduaventuras/apiserver/types"
)

func seed(t *testing.T) (*DB, types.User, types.Subject) {
	t.Helper()
	db := New()
	ctx := context.Background()

	teacher, err := db.Users().Create(ctx, types.User{Email: "ana@example.com", Name: "Ana", LastName: "Ruiz", Role: types.RoleTeacher, Active: true})
	require.NoError(t, err)
	subject, err := db.Subjects().Create(ctx, types.Subject{Name: "Matemáticas", Active: true})
	require.NoError(t, err)
	return db, teacher, subject
}

func TestUserEmailUnique(t *testing.T) {
	db, teacher, _ := seed(t)
	_, err := db.Users().Create(context.Background(), types.User{Email: teacher.Email, Role: types.RoleStudent})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestUserColumnUpdatesDoNotOverlap(t *testing.T) {
	db, teacher, subject := seed(t)
	ctx := context.Background()
	users := db.Users()

	_, err := users.SetActive(ctx, teacher.ID, false)
	require.NoError(t, err)
	require.NoError(t, users.SetPasswordHash(ctx, teacher.ID, "new-hash"))
	bio := "hola"
	updated, err := users.UpdateProfile(ctx, teacher.ID, types.ProfileChanges{Bio: &bio, FavoriteSubjectID: &subject.ID})
	require.NoError(t, err)

	assert.False(t, updated.Active)
	assert.Equal(t, "new-hash", updated.PasswordHash)
	assert.Equal(t, "ana@example.com", updated.Email)
	assert.Equal(t, "Ana", updated.Name)
	require.NotNil(t, updated.FavoriteSubjectID)
	assert.Equal(t, subject.ID, *updated.FavoriteSubjectID)

	updated, err = users.UpdateProfile(ctx, teacher.ID, types.ProfileChanges{ClearFavorite: true})
	require.NoError(t, err)
	assert.Nil(t, updated.FavoriteSubjectID)
	assert.Equal(t, "hola", updated.Bio)
}

func TestUserSetAvatarReturnsPrevious(t *testing.T) {
	db, teacher, _ := seed(t)
	ctx := context.Background()

	previous, _, err := db.Users().SetAvatar(ctx, teacher.ID, "perfiles/a.png")
	require.NoError(t, err)
	assert.Empty(t, previous)
	previous, user, err := db.Users().SetAvatar(ctx, teacher.ID, "perfiles/b.png")
	require.NoError(t, err)
	assert.Equal(t, "perfiles/a.png", previous)
	assert.Equal(t, "perfiles/b.png", user.AvatarPath)

	_, err = db.Users().SetRole(ctx, 999, types.RoleAdmin)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSubjectDeactivateBlockedByActiveResources(t *testing.T) {
	db, teacher, subject := seed(t)
	ctx := context.Background()
	resource, err := db.Resources().Create(ctx, types.Resource{
		Title: "Guía", StoragePath: "recursos/matematicas/a.pdf", SubjectID: subject.ID,
		UploaderID: teacher.ID, UploadedAt: time.Now(), Active: true,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, db.Subjects().Deactivate(ctx, subject.ID), store.ErrConflict)

	require.NoError(t, db.Resources().Deactivate(ctx, resource.ID))
	assert.ErrorIs(t, db.Resources().Deactivate(ctx, resource.ID), store.ErrNotFound)
	require.NoError(t, db.Subjects().Deactivate(ctx, subject.ID))

	active, err := db.Subjects().List(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestResourceViewAndUserDelete(t *testing.T) {
	db, teacher, subject := seed(t)
	ctx := context.Background()
	resource, err := db.Resources().Create(ctx, types.Resource{
		Title: "Guía", StoragePath: "recursos/matematicas/a.pdf", SubjectID: subject.ID,
		UploaderID: teacher.ID, UploadedAt: time.Now(), Active: true,
	})
	require.NoError(t, err)
	_, err = db.Downloads().Record(ctx, resource.ID, teacher.ID)
	require.NoError(t, err)

	got, err := db.Resources().Get(ctx, resource.ID)
	require.NoError(t, err)
	assert.Equal(t, "Matemáticas", got.SubjectName)
	assert.Equal(t, "Ana Ruiz", got.UploaderName)
	assert.Equal(t, 1, got.DownloadCount)

	require.NoError(t, db.Users().Delete(ctx, teacher.ID))
	got, err = db.Resources().Get(ctx, resource.ID)
	require.NoError(t, err)
	assert.Zero(t, got.UploaderID)
	assert.Empty(t, got.UploaderName)

	summary, err := db.Downloads().Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Summary{TotalUsers: 0, TotalSubjects: 1, TotalResources: 1, TotalDownloads: 1}, summary)
}

func TestPopularOrdersByCount(t *testing.T) {
	db, teacher, subject := seed(t)
	ctx := context.Background()
	first, err := db.Resources().Create(ctx, types.Resource{Title: "A", StoragePath: "a", SubjectID: subject.ID, UploaderID: teacher.ID, Active: true})
	require.NoError(t, err)
	second, err := db.Resources().Create(ctx, types.Resource{Title: "B", StoragePath: "b", SubjectID: subject.ID, UploaderID: teacher.ID, Active: true})
	require.NoError(t, err)

	for range 2 {
		_, err = db.Downloads().Record(ctx, second.ID, teacher.ID)
		require.NoError(t, err)
	}
	_, err = db.Downloads().Record(ctx, first.ID, teacher.ID)
	require.NoError(t, err)

	popular, err := db.Downloads().Popular(ctx, 1)
	require.NoError(t, err)
	require.Len(t, popular, 1)
	assert.Equal(t, second.ID, popular[0].ResourceID)
	assert.Equal(t, 2, popular[0].DownloadCount)

	recent, err := db.Downloads().Recent(ctx, teacher.ID, 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "A", recent[0].ResourceTitle)
}
