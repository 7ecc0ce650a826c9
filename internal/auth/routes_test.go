package auth

import (
	"net/url"
	"testing"

	"github.com/eduaventuras/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultClassifier(t *testing.T) {
	classifier := DefaultClassifier()

	tests := []struct {
		method string
		path   string
		access Access
		roles  []types.Role
	}{
		{"GET", "/api/materias", AccessPublic, nil},
		{"GET", "/api/materias/3", AccessPublic, nil},
		{"HEAD", "/api/materias", AccessPublic, nil},
		{"POST", "/api/materias", AccessRole, []types.Role{types.RoleAdmin}},
		{"PUT", "/api/materias/3", AccessRole, []types.Role{types.RoleAdmin}},
		{"GET", "/api/materias/todas", AccessRole, []types.Role{types.RoleAdmin}},
		{"GET", "/api/recursos", AccessPublic, nil},
		{"GET", "/api/recursos/materia/2", AccessPublic, nil},
		{"GET", "/api/recursos/todos", AccessRole, []types.Role{types.RoleAdmin}},
		{"GET", "/api/recursos/7/descargar", AccessAuthenticated, nil},
		{"POST", "/api/recursos/subir", AccessRole, []types.Role{types.RoleTeacher, types.RoleAdmin}},
		{"PUT", "/api/recursos/7", AccessRole, []types.Role{types.RoleAdmin}},
		{"DELETE", "/api/recursos/7", AccessRole, []types.Role{types.RoleTeacher, types.RoleAdmin}},
		{"POST", "/api/usuarios/registro", AccessPublic, nil},
		{"POST", "/api/usuarios/login", AccessPublic, nil},
		{"GET", "/api/usuarios/registro", AccessRole, []types.Role{types.RoleAdmin}},
		{"GET", "/api/usuarios/me", AccessAuthenticated, nil},
		{"GET", "/api/usuarios", AccessRole, []types.Role{types.RoleAdmin}},
		{"DELETE", "/api/usuarios/4", AccessRole, []types.Role{types.RoleAdmin}},
		{"GET", "/api/admin/dashboard/estadisticas", AccessRole, []types.Role{types.RoleAdmin}},
		{"POST", "/api/password/recuperar", AccessPublic, nil},
		{"POST", "/api/password/restablecer", AccessPublic, nil},
		{"POST", "/api/password/cambiar", AccessAuthenticated, nil},
		{"GET", "/api/perfil", AccessAuthenticated, nil},
		{"GET", "/api/perfil/foto/5", AccessPublic, nil},
		{"POST", "/api/perfil/foto", AccessAuthenticated, nil},
		{"GET", "/api/idioma/mensajes", AccessPublic, nil},
		{"GET", "/api/estadisticas/resumen", AccessPublic, nil},
		{"GET", "/healthz", AccessPublic, nil},
		{"POST", "/healthz", AccessAuthenticated, nil},
		{"GET", "/api/unknown", AccessAuthenticated, nil},
		{"GET", "/somewhere/else", AccessAuthenticated, nil},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			requirement := classifier.Classify(tt.method, tt.path)
			assert.Equal(t, tt.access, requirement.Access)
			assert.Equal(t, tt.roles, requirement.Roles)
		})
	}
}

func TestClassifyNormalizesPath(t *testing.T) {
	classifier := DefaultClassifier()

	assert.Equal(t, AccessPublic, classifier.Classify("get", "/api/materias/").Access)
	assert.Equal(t, AccessRole, classifier.Classify("GET", "/api/materias/../usuarios").Access)
	assert.Equal(t, AccessRole, classifier.Classify("GET", "//api//admin/x").Access)
}

func TestRequirementAllows(t *testing.T) {
	upload := DefaultClassifier().Classify("POST", "/api/recursos/subir")
	assert.False(t, upload.Allows(types.RoleStudent))
	assert.True(t, upload.Allows(types.RoleTeacher))
	assert.True(t, upload.Allows(types.RoleAdmin))

	authOnly := Requirement{Access: AccessAuthenticated}
	assert.True(t, authOnly.Allows(types.RoleStudent))
}

func TestNewClassifierRejectsBadRules(t *testing.T) {
	_, err := NewClassifier([]Rule{public("GET", "api/x")})
	assert.Error(t, err)

	_, err = NewClassifier([]Rule{public("GET", "/api/**/x")})
	assert.Error(t, err)

	_, err = NewClassifier([]Rule{{Pattern: "/api/x", Access: AccessRole}})
	assert.Error(t, err)
}

func TestFirstMatchWins(t *testing.T) {
	classifier, err := NewClassifier([]Rule{
		public("GET", "/api/x/**"),
		restricted("GET", "/api/x/secret", types.RoleAdmin),
	})
	require.NoError(t, err)
	assert.Equal(t, AccessPublic, classifier.Classify("GET", "/api/x/secret").Access)
	assert.Len(t, classifier.Rules(), 2)
}

func TestRoutingPath(t *testing.T) {
	u, err := url.ParseRequestURI("/api/usuarios/rol/STUDENT%2F..%2Fmaterias")
	require.NoError(t, err)
	assert.Equal(t, "/api/usuarios/rol/STUDENT%2F..%2Fmaterias", RoutingPath(u))

	u, err = url.ParseRequestURI("/api/materias/7")
	require.NoError(t, err)
	assert.Equal(t, "/api/materias/7", RoutingPath(u))
}

func TestMalformedPath(t *testing.T) {
	for p, want := range map[string]bool{
		"/":                         false,
		"/api/materias":             false,
		"/api/materias/":            false,
		"/api/recursos/7/descargar": false,
		"/api/../materias":          true,
		"/api/./materias":           true,
		"/api//materias":            true,
		"/api/usuarios/%2e%2e":      true,
		"/api/usuarios/a%2Fb":       true,
	} {
		assert.Equal(t, want, MalformedPath(p), p)
	}
}
