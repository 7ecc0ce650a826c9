package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/eduaventuras/apiserver/config"
	"github.com/eduaventuras/apiserver/internal/apperr"
	"github.com/eduaventuras/apiserver/internal/auth"
	"github.com/eduaventuras/apiserver/internal/i18n"
	"github.com/eduaventuras/apiserver/internal/mq"
	"github.com/eduaventuras/apiserver/internal/recovery"
	"github.com/eduaventuras/apiserver/internal/storage"
	"github.com/eduaventuras/apiserver/internal/store/memory"
	"github.com/eduaventuras/apiserver/types"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testChannel  = "password-recovery"
	testPassword = "secreto123"
)

var (
	samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")
	samplePNG = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)
)

type transfers struct {
	uploads   map[string]int
	downloads int
}

func (t *transfers) Upload(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	t.uploads[kind+":"+result]++
}

func (t *transfers) Download() { t.downloads++ }

type fixture struct {
	db        *memory.DB
	documents *storage.DocumentStore
	queue     *mq.MemoryBackend
	transfers *transfers
	issuer    *auth.Issuer

	users     *UserService
	subjects  *SubjectService
	resources *ResourceService
	passwords *PasswordService
	stats     *StatsService
	reports   *ReportService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memory.New()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	documents := storage.NewDocumentStore(local, config.StorageConfig{MaxDocumentBytes: 1 << 20, MaxImageBytes: 1 << 10})
	queue := mq.NewMemoryBackend(8)
	recorder := &transfers{uploads: map[string]int{}}
	issuer := auth.NewIssuer(testSecret, time.Hour)
	bundle, err := i18n.Load()
	require.NoError(t, err)

	f := &fixture{db: db, documents: documents, queue: queue, transfers: recorder, issuer: issuer}
	f.users = NewUserService(db.Users(), db.Subjects(), auth.NewHasher(bcrypt.MinCost), issuer, documents, nil)
	f.subjects = NewSubjectService(db.Subjects())
	f.resources = NewResourceService(db.Resources(), db.Subjects(), db.Downloads(), documents, recorder, nil)
	registry := recovery.NewRegistry(recovery.NewMemoryStore(), db.Users(), time.Hour)
	f.passwords = NewPasswordService(f.users, registry, mq.New(queue, testChannel), "https://eduaventuras.test/restablecer", nil)
	f.stats = NewStatsService(db.Users(), db.Subjects(), db.Resources(), db.Downloads())
	f.reports = NewReportService(f.stats, f.subjects, db.Resources(), bundle)
	return f
}

func (f *fixture) register(t *testing.T, email string, role types.Role) types.User {
	t.Helper()
	if role == types.RoleAdmin {
		user, err := f.users.CreateAdmin(context.Background(), Registration{Email: email, Password: testPassword, Name: "Admin"})
		require.NoError(t, err)
		return user
	}
	session, err := f.users.Register(context.Background(), Registration{
		Email: email, Password: testPassword, Name: "Ana", LastName: "Ruiz", Role: string(role),
	})
	require.NoError(t, err)
	return session.User
}

func (f *fixture) subject(t *testing.T, name string) types.Subject {
	t.Helper()
	subject, err := f.subjects.Create(context.Background(), SubjectInput{Name: name})
	require.NoError(t, err)
	return subject
}

func identity(user types.User) auth.Identity {
	return auth.Identity{UserID: user.ID, Email: user.Email, Role: user.Role}
}

func TestRegisterIssuesVerifiableToken(t *testing.T) {
	f := newFixture(t)
	session, err := f.users.Register(context.Background(), Registration{
		Email: " Ana@Example.com ", Password: testPassword, Name: "Ana",
	})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", session.User.Email)
	assert.Equal(t, types.RoleStudent, session.User.Role)
	assert.True(t, session.User.Active)
	assert.True(t, f.issuer.Validate(session.Token, "ana@example.com"))
}

func TestRegisterRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "ana@example.com", types.RoleStudent)

	tests := []struct {
		name  string
		input Registration
		kind  error
	}{
		{"duplicate email", Registration{Email: "ANA@example.com", Password: testPassword, Name: "Ana"}, apperr.ErrConflict},
		{"admin role", Registration{Email: "x@example.com", Password: testPassword, Name: "X", Role: "admin"}, apperr.ErrValidation},
		{"short password", Registration{Email: "y@example.com", Password: "123", Name: "Y"}, apperr.ErrValidation},
		{"bad email", Registration{Email: "not-an-email", Password: testPassword, Name: "Z"}, apperr.ErrValidation},
		{"missing name", Registration{Email: "z@example.com", Password: testPassword}, apperr.ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.users.Register(ctx, tc.input)
			assert.ErrorIs(t, err, tc.kind)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, "admin@example.com", types.RoleAdmin)
	user := f.register(t, "ana@example.com", types.RoleStudent)

	session, err := f.users.Authenticate(ctx, "ANA@example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.User.ID)

	_, err = f.users.Authenticate(ctx, "ana@example.com", "wrong-password")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = f.users.Authenticate(ctx, "nobody@example.com", testPassword)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = f.users.SetActive(ctx, admin.ID, user.ID, false)
	require.NoError(t, err)
	_, err = f.users.Authenticate(ctx, "ana@example.com", testPassword)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestAdminCannotLockThemselvesOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, "admin@example.com", types.RoleAdmin)

	_, err := f.users.SetActive(ctx, admin.ID, admin.ID, false)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.users.SetRole(ctx, admin.ID, admin.ID, "student")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.ErrorIs(t, f.users.DeletePermanent(ctx, admin.ID, admin.ID), apperr.ErrValidation)
}

func TestSetRoleAndListByRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, "admin@example.com", types.RoleAdmin)
	user := f.register(t, "ana@example.com", types.RoleStudent)

	updated, err := f.users.SetRole(ctx, admin.ID, user.ID, "teacher")
	require.NoError(t, err)
	assert.Equal(t, types.RoleTeacher, updated.Role)

	teachers, err := f.users.ListByRole(ctx, "TEACHER")
	require.NoError(t, err)
	require.Len(t, teachers, 1)
	assert.Equal(t, user.ID, teachers[0].ID)

	_, err = f.users.ListByRole(ctx, "ROLE_TEACHER")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	counts, err := f.users.RoleCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.RoleCounts{Teachers: 1, Admins: 1, Total: 2}, counts)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "ana@example.com", types.RoleStudent)
	subject := f.subject(t, "Historia")

	bio := "  Me gusta leer  "
	favorite := subject.ID
	updated, err := f.users.UpdateProfile(ctx, user.ID, ProfileUpdate{Bio: &bio, FavoriteSubjectID: &favorite})
	require.NoError(t, err)
	assert.Equal(t, "Me gusta leer", updated.Bio)
	require.NotNil(t, updated.FavoriteSubjectID)
	assert.Equal(t, subject.ID, *updated.FavoriteSubjectID)

	missing := 999
	_, err = f.users.UpdateProfile(ctx, user.ID, ProfileUpdate{FavoriteSubjectID: &missing})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	clear := 0
	updated, err = f.users.UpdateProfile(ctx, user.ID, ProfileUpdate{FavoriteSubjectID: &clear})
	require.NoError(t, err)
	assert.Nil(t, updated.FavoriteSubjectID)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "ana@example.com", types.RoleStudent)

	err := f.passwords.ChangePassword(ctx, user.ID, "wrong-password", "nuevo1234")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	require.NoError(t, f.passwords.ChangePassword(ctx, user.ID, testPassword, "nuevo1234"))
	_, err = f.users.Authenticate(ctx, user.Email, "nuevo1234")
	assert.NoError(t, err)
}

func TestAvatarLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, "admin@example.com", types.RoleAdmin)
	user := f.register(t, "ana@example.com", types.RoleStudent)

	_, _, err := f.users.Avatar(ctx, user.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	updated, err := f.users.UploadAvatar(ctx, user.ID, samplePNG, "image/png", "yo.png")
	require.NoError(t, err)
	require.NotEmpty(t, updated.AvatarPath)
	first := updated.AvatarPath

	data, contentType, err := f.users.Avatar(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, samplePNG, data)
	assert.Equal(t, "image/png", contentType)

	updated, err = f.users.UploadAvatar(ctx, user.ID, samplePNG, "image/png", "yo.png")
	require.NoError(t, err)
	_, err = f.documents.Read(ctx, first)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "previous photo is removed")

	_, err = f.users.UploadAvatar(ctx, user.ID, samplePDF, "application/pdf", "yo.pdf")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	require.NoError(t, f.users.DeletePermanent(ctx, admin.ID, user.ID))
	_, err = f.documents.Read(ctx, updated.AvatarPath)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSubjectLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	teacher := f.register(t, "profe@example.com", types.RoleTeacher)
	subject := f.subject(t, "Ciencias")

	_, err := f.subjects.Create(ctx, SubjectInput{Name: "Ciencias"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = f.subjects.Create(ctx, SubjectInput{Name: "   "})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	resource, err := f.resources.Upload(ctx, identity(teacher), Upload{
		Title: "Células", SubjectID: subject.ID, Filename: "celulas.pdf", ContentType: "application/pdf", Data: samplePDF,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, f.subjects.Delete(ctx, subject.ID), apperr.ErrConflict)
	require.NoError(t, f.resources.Delete(ctx, identity(teacher), resource.ID))
	require.NoError(t, f.subjects.Delete(ctx, subject.ID))

	_, err = f.subjects.Get(ctx, subject.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	all, err := f.subjects.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUploadValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	teacher := f.register(t, "profe@example.com", types.RoleTeacher)
	student := f.register(t, "alumno@example.com", types.RoleStudent)
	subject := f.subject(t, "Matemáticas")

	valid := Upload{Title: "Guía", SubjectID: subject.ID, Filename: "guia.pdf", ContentType: "application/pdf", Data: samplePDF}

	_, err := f.resources.Upload(ctx, identity(student), valid)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	notPDF := valid
	notPDF.Data = []byte("plain text, not a pdf")
	_, err = f.resources.Upload(ctx, identity(teacher), notPDF)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	tooLarge := valid
	tooLarge.Data = append(append([]byte{}, samplePDF...), bytes.Repeat([]byte{' '}, 1<<20)...)
	_, err = f.resources.Upload(ctx, identity(teacher), tooLarge)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	missingSubject := valid
	missingSubject.SubjectID = 42
	_, err = f.resources.Upload(ctx, identity(teacher), missingSubject)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	resource, err := f.resources.Upload(ctx, identity(teacher), valid)
	require.NoError(t, err)
	assert.Equal(t, "Matemáticas", resource.SubjectName)
	assert.Equal(t, int64(len(samplePDF)), resource.SizeBytes)
	assert.Contains(t, resource.StoragePath, "recursos/matematicas/")
	assert.Equal(t, 1, f.transfers.uploads["document:ok"])
	assert.Equal(t, 4, f.transfers.uploads["document:error"])
}

type failingResources struct {
	ResourceRepository
}

func (failingResources) Create(context.Context, types.Resource) (types.Resource, error) {
	return types.Resource{}, errors.New("insert failed")
}

func TestUploadRollsBackFileWhenInsertFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	teacher := f.register(t, "profe@example.com", types.RoleTeacher)
	subject := f.subject(t, "Arte")

	var saved []string
	f.resources.repo = failingResources{f.db.Resources()}
	f.documents = storage.NewDocumentStore(&recordingStorage{ObjectStorage: mustLocal(t), created: &saved}, config.StorageConfig{})
	f.resources.documents = f.documents

	_, err := f.resources.Upload(ctx, identity(teacher), Upload{
		Title: "Colores", SubjectID: subject.ID, Filename: "c.pdf", ContentType: "application/pdf", Data: samplePDF,
	})
	require.Error(t, err)
	require.Len(t, saved, 1)
	_, err = f.documents.Read(ctx, saved[0])
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDownloadRecordsAndHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	teacher := f.register(t, "profe@example.com", types.RoleTeacher)
	student := f.register(t, "alumno@example.com", types.RoleStudent)
	subject := f.subject(t, "Lengua")

	resource, err := f.resources.Upload(ctx, identity(teacher), Upload{
		Title: "Poemas", SubjectID: subject.ID, Filename: "p.pdf", ContentType: "application/pdf", Data: samplePDF,
	})
	require.NoError(t, err)

	got, data, err := f.resources.Download(ctx, resource.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, samplePDF, data)
	assert.Equal(t, "p.pdf", got.OriginalFilename)
	assert.Equal(t, 1, f.transfers.downloads)

	history, err := f.resources.DownloadsByUser(ctx, student.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Poemas", history[0].ResourceTitle)

	bySubject, err := f.resources.ListBySubject(ctx, subject.ID)
	require.NoError(t, err)
	require.Len(t, bySubject, 1)
	assert.Equal(t, 1, bySubject[0].DownloadCount)
}

func TestDeleteResourceOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "profe@example.com", types.RoleTeacher)
	other := f.register(t, "otra@example.com", types.RoleTeacher)
	admin := f.register(t, "admin@example.com", types.RoleAdmin)
	subject := f.subject(t, "Física")

	upload := func() types.Resource {
		resource, err := f.resources.Upload(ctx, identity(owner), Upload{
			Title: "Leyes", SubjectID: subject.ID, Filename: "l.pdf", ContentType: "application/pdf", Data: samplePDF,
		})
		require.NoError(t, err)
		return resource
	}

	first := upload()
	assert.ErrorIs(t, f.resources.Delete(ctx, identity(other), first.ID), apperr.ErrForbidden)
	require.NoError(t, f.resources.Delete(ctx, identity(owner), first.ID))
	assert.ErrorIs(t, f.resources.Delete(ctx, identity(owner), first.ID), apperr.ErrNotFound)

	_, _, err := f.resources.Download(ctx, first.ID, owner.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.documents.Read(ctx, first.StoragePath)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	second := upload()
	require.NoError(t, f.resources.Delete(ctx, identity(admin), second.ID))

	active, err := f.resources.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := f.resources.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUpdateResource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	teacher := f.register(t, "profe@example.com", types.RoleTeacher)
	from := f.subject(t, "Química")
	to := f.subject(t, "Biología")

	resource, err := f.resources.Upload(ctx, identity(teacher), Upload{
		Title: "Tabla", SubjectID: from.ID, Filename: "t.pdf", ContentType: "application/pdf", Data: samplePDF,
	})
	require.NoError(t, err)

	title := "Tabla periódica"
	updated, err := f.resources.Update(ctx, resource.ID, ResourceUpdate{Title: &title, SubjectID: &to.ID})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, to.ID, updated.SubjectID)
	assert.Equal(t, resource.StoragePath, updated.StoragePath)

	empty := " "
	_, err = f.resources.Update(ctx, resource.ID, ResourceUpdate{Title: &empty})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	teacher := f.register(t, "profe@example.com", types.RoleTeacher)
	student := f.register(t, "alumno@example.com", types.RoleStudent)
	subject := f.subject(t, "Geografía")

	resource, err := f.resources.Upload(ctx, identity(teacher), Upload{
		Title: "Mapas", SubjectID: subject.ID, Filename: "m.pdf", ContentType: "application/pdf", Data: samplePDF,
	})
	require.NoError(t, err)
	_, _, err = f.resources.Download(ctx, resource.ID, student.ID)
	require.NoError(t, err)

	summary, err := f.stats.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Summary{TotalUsers: 2, TotalSubjects: 1, TotalResources: 1, TotalDownloads: 1}, summary)

	dashboard, err := f.stats.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dashboard.Users.Students)
	assert.Equal(t, 1, dashboard.Users.Teachers)
	require.Len(t, dashboard.PopularResources, 1)
	assert.Equal(t, "Mapas", dashboard.PopularResources[0].Title)
	assert.Len(t, dashboard.RecentUsers, 2)
	assert.Len(t, dashboard.RecentResources, 1)
	assert.Len(t, dashboard.RecentDownloads, 1)
	require.Len(t, dashboard.ResourcesPerSubject, 1)
	assert.Equal(t, 1, dashboard.ResourcesPerSubject[0].ResourceCount)
}

func TestReportsArePDF(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	teacher := f.register(t, "profe@example.com", types.RoleTeacher)
	subject := f.subject(t, "Música")
	_, err := f.resources.Upload(ctx, identity(teacher), Upload{
		Title: "Partituras", SubjectID: subject.ID, Filename: "p.pdf", ContentType: "application/pdf", Data: samplePDF,
	})
	require.NoError(t, err)

	report, err := f.reports.StatisticsReport(ctx, "es")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(report, []byte("%PDF-")))

	report, err = f.reports.SubjectReport(ctx, subject.ID, "en")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(report, []byte("%PDF-")))

	_, err = f.reports.SubjectReport(ctx, 999, "es")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

type recordingStorage struct {
	storage.ObjectStorage
	created *[]string
}

func (r *recordingStorage) Create(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	*r.created = append(*r.created, key)
	return r.ObjectStorage.Create(ctx, key, reader, size, contentType)
}

func mustLocal(t *testing.T) *storage.LocalStorage {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return local
}

// pausingSubjects blocks Get until release is closed.
type pausingSubjects struct {
	SubjectRepository
	reached chan struct{}
	release chan struct{}
}

func (p *pausingSubjects) Get(ctx context.Context, id int) (types.Subject, error) {
	close(p.reached)
	<-p.release
	return p.SubjectRepository.Get(ctx, id)
}

func TestProfileEditKeepsConcurrentDeactivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, "admin@example.com", types.RoleAdmin)
	user := f.register(t, "ana@example.com", types.RoleStudent)
	subject := f.subject(t, "Historia")

	paused := &pausingSubjects{SubjectRepository: f.db.Subjects(), reached: make(chan struct{}), release: make(chan struct{})}
	users := NewUserService(f.db.Users(), paused, auth.NewHasher(bcrypt.MinCost), f.issuer, f.documents, nil)

	type result struct {
		user types.User
		err  error
	}
	done := make(chan result, 1)
	go func() {
		bio := "Me gusta leer"
		updated, err := users.UpdateProfile(ctx, user.ID, ProfileUpdate{Bio: &bio, FavoriteSubjectID: &subject.ID})
		done <- result{updated, err}
	}()

	<-paused.reached
	_, err := f.users.SetActive(ctx, admin.ID, user.ID, false)
	require.NoError(t, err)
	_, err = f.users.SetRole(ctx, admin.ID, user.ID, string(types.RoleTeacher))
	require.NoError(t, err)
	close(paused.release)

	edited := <-done
	require.NoError(t, edited.err)
	assert.Equal(t, "Me gusta leer", edited.user.Bio)
	assert.False(t, edited.user.Active)

	stored, err := f.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
	assert.Equal(t, types.RoleTeacher, stored.Role)
}

// pausingStorage blocks Create until release is closed.
type pausingStorage struct {
	storage.ObjectStorage
	reached chan struct{}
	release chan struct{}
}

func (p *pausingStorage) Create(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	close(p.reached)
	<-p.release
	return p.ObjectStorage.Create(ctx, key, reader, size, contentType)
}

func TestAvatarUploadKeepsConcurrentPasswordReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "ana@example.com", types.RoleStudent)

	paused := &pausingStorage{ObjectStorage: mustLocal(t), reached: make(chan struct{}), release: make(chan struct{})}
	documents := storage.NewDocumentStore(paused, config.StorageConfig{MaxDocumentBytes: 1 << 20, MaxImageBytes: 1 << 10})
	users := NewUserService(f.db.Users(), f.db.Subjects(), auth.NewHasher(bcrypt.MinCost), f.issuer, documents, nil)

	done := make(chan error, 1)
	go func() {
		_, err := users.UploadAvatar(ctx, user.ID, samplePNG, "image/png", "yo.png")
		done <- err
	}()

	<-paused.reached
	require.NoError(t, f.users.SetPassword(ctx, user.Email, "nuevaClave9"))
	close(paused.release)
	require.NoError(t, <-done)

	_, err := f.users.Authenticate(ctx, user.Email, "nuevaClave9")
	assert.NoError(t, err)
	_, err = f.users.Authenticate(ctx, user.Email, testPassword)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}
