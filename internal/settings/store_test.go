package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fleet-dashboard/internal/backend"
	"fleet-dashboard/internal/models"
)

type mockRemote struct {
	mock.Mock
}

func (m *mockRemote) ListSettings(ctx context.Context, ts backend.TokenSource) ([]backend.SettingItem, error) {
	args := m.Called(ctx, ts)
	items, _ := args.Get(0).([]backend.SettingItem)
	return items, args.Error(1)
}

func (m *mockRemote) SetSetting(ctx context.Context, ts backend.TokenSource, key, value string) error {
	return m.Called(ctx, ts, key, value).Error(0)
}

func TestLoadOverlaysRemoteValues(t *testing.T) {
	remote := new(mockRemote)
	ts := backend.StaticToken("t")
	remote.On("ListSettings", mock.Anything, ts).Return([]backend.SettingItem{
		{Key: "language", Vle: "de"},
		{Key: "unknown", Vle: "x"},
	}, nil)

	s := New(remote, nil)
	list := s.Load(context.Background(), models.RoleUser, ts)

	require.Len(t, list, 5)
	v, ok := s.Get("language")
	require.True(t, ok)
	assert.Equal(t, "de", v)
	_, ok = s.Get("unknown")
	assert.False(t, ok)
}

func TestLoadManagerUsesDefaults(t *testing.T) {
	remote := new(mockRemote)
	s := New(remote, nil)

	list := s.Load(context.Background(), models.RoleManager, backend.StaticToken("t"))
	assert.Equal(t, Defaults(), list)
	remote.AssertNotCalled(t, "ListSettings", mock.Anything, mock.Anything)
}

func TestLoadRemoteErrorUsesDefaults(t *testing.T) {
	remote := new(mockRemote)
	remote.On("ListSettings", mock.Anything, mock.Anything).Return(nil, errors.New("down"))

	s := New(remote, nil)
	assert.Equal(t, Defaults(), s.Load(context.Background(), models.RoleUser, backend.StaticToken("t")))
}

func TestUpdatePersistsOnlyChangedEntries(t *testing.T) {
	remote := new(mockRemote)
	ts := backend.StaticToken("t")
	remote.On("ListSettings", mock.Anything, ts).Return(nil, nil)
	remote.On("SetSetting", mock.Anything, ts, "language", "fr").Return(nil).Once()
	remote.On("SetSetting", mock.Anything, ts, "theme", "dark").Return(nil).Once()

	s := New(remote, nil)
	s.Load(context.Background(), models.RoleUser, ts)

	changed, err := s.Update(context.Background(), models.RoleUser, ts, []models.Setting{
		{Title: "language", Value: "fr"},
		{Title: "date_format", Value: "dd-MM-yyyy"},
		{Title: "theme", Value: "dark"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"language", "theme"}, changed)
	remote.AssertNumberOfCalls(t, "SetSetting", 2)

	list := s.List()
	assert.Equal(t, "theme", list[len(list)-1].Title)
}

func TestUpdateKeepsOptimisticValueOnPersistFailure(t *testing.T) {
	remote := new(mockRemote)
	ts := backend.StaticToken("t")
	remote.On("SetSetting", mock.Anything, ts, "language", "nl").Return(errors.New("boom"))

	s := New(remote, nil)
	_, err := s.Update(context.Background(), models.RoleUser, ts, []models.Setting{{Title: "language", Value: "nl"}})
	require.NoError(t, err)

	v, _ := s.Get("language")
	assert.Equal(t, "nl", v)
}

func TestUpdateWithoutTokenIsNoop(t *testing.T) {
	remote := new(mockRemote)
	s := New(remote, nil)

	changed, err := s.Update(context.Background(), models.RoleUser, backend.StaticToken(""), []models.Setting{{Title: "language", Value: "nl"}})
	require.NoError(t, err)
	assert.Empty(t, changed)
	assert.Empty(t, s.List())
}

func TestUpdateManagerSkipsRemote(t *testing.T) {
	remote := new(mockRemote)
	s := New(remote, nil)

	changed, err := s.Update(context.Background(), models.RoleManager, backend.StaticToken("t"), []models.Setting{{Title: "language", Value: "nl"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"language"}, changed)
	remote.AssertNotCalled(t, "SetSetting", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateRejectsNonScalar(t *testing.T) {
	s := New(nil, nil)
	_, err := s.Update(context.Background(), models.RoleUser, backend.StaticToken("t"), []models.Setting{{Title: "x", Value: []string{"a"}}})
	assert.Error(t, err)
}

func TestGoLayout(t *testing.T) {
	assert.Equal(t, "02-01-2006 15:04:05", GoLayout("dd-MM-yyyy HH:mm:ss"))
	assert.Equal(t, "2006/01/02 03:04 PM", GoLayout("yyyy/MM/dd hh:mm a"))
	assert.Equal(t, "2 Jan 06", GoLayout("d MMM yy"))
}

func TestFormatTimeUsesSettings(t *testing.T) {
	s := New(nil, nil)
	s.Load(context.Background(), models.RoleManager, backend.StaticToken("t"))
	ts := time.Date(2024, 3, 7, 9, 5, 1, 0, time.UTC)
	assert.Equal(t, "07-03-2024 09:05:01", s.FormatTime(ts))
}
