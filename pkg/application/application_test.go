package application

import (
	"errors"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

type widgetService struct{ name string }

type stubController struct{ key string }

func (c *stubController) Register(*mux.Router) {}
func (c *stubController) Key() string { return c.key }

type stubModule struct {
	name string
	err  error
}

func (m *stubModule) Register(app Application) error {
	if m.err != nil {
		return m.err
	}
	app.RegisterServices(&widgetService{name: m.name})
	return nil
}
func (m *stubModule) Name() string { return m.name }

func TestService_LookupByType(t *testing.T) {
	app := New(&ApplicationOptions{})
	app.RegisterServices(&widgetService{name: "w"})

	svc := app.Service(widgetService{}).(*widgetService)
	require.Equal(t, "w", svc.name)
}

func TestService_PanicsWhenMissing(t *testing.T) {
	app := New(&ApplicationOptions{})
	require.Panics(t, func() { app.Service(widgetService{}) })
}

func TestControllers_SortedByKey(t *testing.T) {
	app := New(&ApplicationOptions{})
	app.RegisterControllers(&stubController{key: "/b"}, &stubController{key: "/a"})

	ctrls := app.Controllers()
	require.Len(t, ctrls, 2)
	require.Equal(t, "/a", ctrls[0].Key())
	require.Equal(t, "/b", ctrls[1].Key())
}

func TestLoad_WrapsModuleError(t *testing.T) {
	app := New(&ApplicationOptions{})
	boom := errors.New("boom")

	err := Load(app, &stubModule{name: "ok"}, &stubModule{name: "broken", err: boom})
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "module broken")
}
