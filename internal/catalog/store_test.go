package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gamecatalog/backend/internal/models"
	"gamecatalog/backend/pkg/apperror"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:?_pragma=foreign_keys(1)"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, AutoMigrate(db))
	return New(db)
}

type fixture struct {
	store    *Store
	editor   *models.Editor
	action   *models.Category
	strategy *models.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := newTestStore(t)
	ctx := context.Background()
	editor, err := s.CreateEditor(ctx, "Nintendo", "Japan")
	require.NoError(t, err)
	action, err := s.CreateCategory(ctx, "Action")
	require.NoError(t, err)
	strategy, err := s.CreateCategory(ctx, "Strategy")
	require.NoError(t, err)
	return &fixture{store: s, editor: editor, action: action, strategy: strategy}
}

func (f *fixture) game(t *testing.T, title string, release time.Time) *models.VideoGame {
	t.Helper()
	g, err := f.store.CreateVideoGame(context.Background(), VideoGameDraft{
		Title:       title,
		ReleaseDate: release,
		EditorID:    f.editor.ID,
		CategoryIDs: []uint{f.action.ID},
	})
	require.NoError(t, err)
	return g
}

func countRows(t *testing.T, s *Store, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.DB().Model(model).Count(&n).Error)
	return n
}

func TestListPageReturnsAtMostLimitAtOffset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 12; i++ {
		_, err := s.CreateCategory(ctx, fmt.Sprintf("Category %02d", i))
		require.NoError(t, err)
	}

	tests := []struct {
		page, limit int
		wantFirst   uint
		wantLen     int
	}{
		{page: 1, limit: 5, wantFirst: 1, wantLen: 5},
		{page: 2, limit: 5, wantFirst: 6, wantLen: 5},
		{page: 3, limit: 5, wantFirst: 11, wantLen: 2},
		{page: 4, limit: 5, wantLen: 0},
		{page: 1, limit: 100, wantFirst: 1, wantLen: 12},
		{page: 7, limit: 2, wantFirst: 0, wantLen: 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("page=%d,limit=%d", tt.page, tt.limit), func(t *testing.T) {
			got, err := s.ListCategories(ctx, tt.page, tt.limit)
			require.NoError(t, err)
			require.Len(t, got, tt.wantLen)
			assert.LessOrEqual(t, len(got), tt.limit)
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantFirst, got[0].ID)
				assert.Equal(t, uint((tt.page-1)*tt.limit+1), got[0].ID)
			}
		})
	}
}

func TestListPageRejectsNonPositiveArguments(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ListEditors(context.Background(), 0, 5)
	assert.True(t, apperror.Is(err, apperror.KindValidation))
	_, err = s.ListEditors(context.Background(), 1, 0)
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestFindUpcomingReleasesWindowBoundaries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asOf := time.Date(2026, 10, 19, 15, 30, 0, 0, time.UTC)

	f.game(t, "last second", time.Date(2026, 10, 26, 23, 59, 59, 0, time.UTC))
	f.game(t, "one second late", time.Date(2026, 10, 27, 0, 0, 0, 0, time.UTC))
	f.game(t, "midnight", time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))
	f.game(t, "day before", time.Date(2026, 10, 18, 23, 59, 59, 0, time.UTC))
	f.game(t, "midweek", time.Date(2026, 10, 22, 12, 0, 0, 0, time.UTC))

	games, err := f.store.FindUpcomingReleases(ctx, asOf, DefaultHorizonDays)
	require.NoError(t, err)

	var titles []string
	for _, g := range games {
		titles = append(titles, g.Title)
	}
	assert.Equal(t, []string{"midnight", "midweek", "last second"}, titles)
	for i := 1; i < len(games); i++ {
		assert.False(t, games[i].ReleaseDate.Before(games[i-1].ReleaseDate), "results must be sorted ascending")
	}
	require.NotNil(t, games[0].Editor)
	assert.Equal(t, "Nintendo", games[0].Editor.Name)
	assert.Len(t, games[0].Categories, 1)
}

func TestFindUpcomingReleasesUsesCallerLocation(t *testing.T) {
	f := newFixture(t)
	cet := time.FixedZone("CET", 60*60)
	asOf := time.Date(2026, 10, 19, 10, 0, 0, 0, cet)

	// 23:30 UTC on the 18th is 00:30 on the 19th in CET.
	f.game(t, "just after local midnight", time.Date(2026, 10, 18, 23, 30, 0, 0, time.UTC))
	// 23:30 UTC on the 26th is already the 27th in CET.
	f.game(t, "past local horizon", time.Date(2026, 10, 26, 23, 30, 0, 0, time.UTC))

	games, err := f.store.FindUpcomingReleases(context.Background(), asOf, 7)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "just after local midnight", games[0].Title)
}

func TestFindUpcomingReleasesSortsAnyInsertionOrder(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	for _, h := range []int{150, 3, 90, 0, 42, 167} {
		f.game(t, fmt.Sprintf("h%d", h), base.Add(time.Duration(h)*time.Hour))
	}
	games, err := f.store.FindUpcomingReleases(context.Background(), base, 7)
	require.NoError(t, err)
	require.Len(t, games, 6)
	for i := 1; i < len(games); i++ {
		assert.True(t, !games[i].ReleaseDate.Before(games[i-1].ReleaseDate))
	}
}

func TestCreateVideoGameWithUnknownEditorPersistsNothing(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.CreateVideoGame(context.Background(), VideoGameDraft{
		Title:       "Orphan",
		ReleaseDate: time.Now(),
		EditorID:    999,
		CategoryIDs: []uint{f.action.ID},
	})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
	assert.Contains(t, err.Error(), "editor 999 not found")
	assert.Zero(t, countRows(t, f.store, &models.VideoGame{}))

	var links int64
	require.NoError(t, f.store.DB().Table("video_game_category").Count(&links).Error)
	assert.Zero(t, links)
}

func TestCreateVideoGameWithUnknownCategory(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.CreateVideoGame(context.Background(), VideoGameDraft{
		Title:       "Half linked",
		ReleaseDate: time.Now(),
		EditorID:    f.editor.ID,
		CategoryIDs: []uint{f.action.ID, 42},
	})
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
	assert.Contains(t, err.Error(), "category 42 not found")
	assert.Zero(t, countRows(t, f.store, &models.VideoGame{}))
}

func TestCreateVideoGameValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.CreateVideoGame(context.Background(), VideoGameDraft{
		Title:    "",
		EditorID: f.editor.ID,
	})
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.KindValidation, appErr.Kind)
	assert.Contains(t, appErr.Fields, "title")
	assert.Contains(t, appErr.Fields, "releaseDate")
	assert.Contains(t, appErr.Fields, "categories")
	assert.Zero(t, countRows(t, f.store, &models.VideoGame{}))

	_, err = f.store.CreateVideoGame(context.Background(), VideoGameDraft{
		Title:       "A title that is definitely longer than the fifty character limit",
		ReleaseDate: time.Now(),
		EditorID:    f.editor.ID,
		CategoryIDs: []uint{f.action.ID},
	})
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Fields["title"], "50")
}

func TestUpdateVideoGamePartial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.game(t, "Before", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	title := "After"
	updated, err := f.store.UpdateVideoGame(ctx, g.ID, VideoGamePatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "After", updated.Title)
	assert.Equal(t, []uint{f.action.ID}, updated.CategoryIDs())

	updated, err = f.store.UpdateVideoGame(ctx, g.ID, VideoGamePatch{CategoryIDs: []uint{f.strategy.ID, f.action.ID}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{f.action.ID, f.strategy.ID}, updated.CategoryIDs())

	_, err = f.store.UpdateVideoGame(ctx, g.ID, VideoGamePatch{CategoryIDs: []uint{}})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	missing := uint(77)
	_, err = f.store.UpdateVideoGame(ctx, g.ID, VideoGamePatch{EditorID: &missing})
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	reloaded, err := f.store.GetVideoGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, f.editor.ID, reloaded.EditorID)

	_, err = f.store.UpdateVideoGame(ctx, 12345, VideoGamePatch{Title: &title})
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestDeleteEditorReferencedByGameIsConstraintError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.game(t, "Zelda", time.Now())

	err := f.store.DeleteEditor(ctx, f.editor.ID)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindConstraint))
	_, err = f.store.GetEditor(ctx, f.editor.ID)
	require.NoError(t, err, "editor must survive")
	_, err = f.store.GetVideoGame(ctx, g.ID)
	require.NoError(t, err, "game must not be cascaded")

	_, err = f.store.DeleteVideoGame(ctx, g.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.DeleteEditor(ctx, f.editor.ID))
	assert.True(t, apperror.Is(f.store.DeleteEditor(ctx, f.editor.ID), apperror.KindNotFound))
}

func TestDeleteCategoryKeepsGames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, err := f.store.CreateVideoGame(ctx, VideoGameDraft{
		Title:       "Multi",
		ReleaseDate: time.Now(),
		EditorID:    f.editor.ID,
		CategoryIDs: []uint{f.action.ID, f.strategy.ID},
	})
	require.NoError(t, err)

	require.NoError(t, f.store.DeleteCategory(ctx, f.action.ID))

	reloaded, err := f.store.GetVideoGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{f.strategy.ID}, reloaded.CategoryIDs())
	assert.True(t, apperror.Is(f.store.DeleteCategory(ctx, f.action.ID), apperror.KindNotFound))
}

func TestDeleteVideoGameLeavesEditorAndCategories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.game(t, "Doomed", time.Now())

	deleted, err := f.store.DeleteVideoGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.ID, deleted.ID)
	assert.EqualValues(t, 1, countRows(t, f.store, &models.Editor{}))
	assert.EqualValues(t, 2, countRows(t, f.store, &models.Category{}))

	_, err = f.store.DeleteVideoGame(ctx, g.ID)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestGamesByEditorAndCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other, err := f.store.CreateEditor(ctx, "Sega", "Japan")
	require.NoError(t, err)

	late := f.game(t, "Late", time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
	early := f.game(t, "Early", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	_, err = f.store.CreateVideoGame(ctx, VideoGameDraft{
		Title:       "Sonic",
		ReleaseDate: time.Now(),
		EditorID:    other.ID,
		CategoryIDs: []uint{f.strategy.ID},
	})
	require.NoError(t, err)

	games, err := f.store.GamesByEditor(ctx, f.editor.ID)
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, early.ID, games[0].ID)
	assert.Equal(t, late.ID, games[1].ID)

	games, err = f.store.GamesByCategory(ctx, f.strategy.ID)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "Sonic", games[0].Title)

	_, err = f.store.GamesByEditor(ctx, 999)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestEditorAndCategoryValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateEditor(ctx, "", "")
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Fields, "name")
	assert.Contains(t, appErr.Fields, "country")

	_, err = s.CreateCategory(ctx, "")
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	c, err := s.CreateCategory(ctx, "RPG")
	require.NoError(t, err)
	empty := ""
	_, err = s.RenameCategory(ctx, c.ID, empty)
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	e, err := s.CreateEditor(ctx, "Capcom", "Japan")
	require.NoError(t, err)
	country := "Japon"
	updated, err := s.UpdateEditor(ctx, e.ID, EditorPatch{Country: &country})
	require.NoError(t, err)
	assert.Equal(t, "Capcom", updated.Name)
	assert.Equal(t, "Japon", updated.Country)
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	off := false
	alice, err := s.CreateUser(ctx, UserDraft{Email: "Alice@Example.com ", Password: "Sup3r$ecret"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", alice.Email)
	assert.True(t, alice.Newsletter)
	assert.Equal(t, []string{models.RoleUser}, alice.EffectiveRoles())

	_, err = s.CreateUser(ctx, UserDraft{Email: "bob@example.com", Password: "Sup3r$ecret", Roles: []string{models.RoleAdmin}, Newsletter: &off})
	require.NoError(t, err)

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		_, err := s.CreateUser(ctx, UserDraft{Email: "alice@example.com", Password: "Sup3r$ecret"})
		assert.True(t, apperror.Is(err, apperror.KindConflict))
	})

	t.Run("weak password and bad email are rejected", func(t *testing.T) {
		_, err := s.CreateUser(ctx, UserDraft{Email: "not-an-email", Password: "password"})
		var appErr *apperror.Error
		require.ErrorAs(t, err, &appErr)
		assert.Contains(t, appErr.Fields, "email")
		assert.Contains(t, appErr.Fields, "password")
	})

	t.Run("unknown role is rejected", func(t *testing.T) {
		_, err := s.CreateUser(ctx, UserDraft{Email: "carol@example.com", Password: "Sup3r$ecret", Roles: []string{"ROLE_GOD"}})
		assert.True(t, apperror.Is(err, apperror.KindValidation))
	})

	t.Run("password hash never serialized", func(t *testing.T) {
		raw, err := json.Marshal(alice)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "password")
		assert.NotContains(t, string(raw), alice.PasswordHash)
	})

	t.Run("subscribers exclude opted-out users", func(t *testing.T) {
		subs, err := s.FindSubscribedUsers(ctx)
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, "alice@example.com", subs[0].Email)
	})

	t.Run("authenticate", func(t *testing.T) {
		u, err := s.Authenticate(ctx, "alice@example.com", "Sup3r$ecret")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, u.ID)
		_, err = s.Authenticate(ctx, "alice@example.com", "wrong")
		assert.True(t, apperror.Is(err, apperror.KindUnauthorized))
		_, err = s.Authenticate(ctx, "nobody@example.com", "Sup3r$ecret")
		assert.True(t, apperror.Is(err, apperror.KindUnauthorized))
	})

	t.Run("partial update", func(t *testing.T) {
		taken := "bob@example.com"
		_, err := s.UpdateUser(ctx, alice.ID, UserPatch{Email: &taken})
		assert.True(t, apperror.Is(err, apperror.KindConflict))

		weak := "short"
		_, err = s.UpdateUser(ctx, alice.ID, UserPatch{Password: &weak})
		assert.True(t, apperror.Is(err, apperror.KindValidation))

		updated, err := s.UpdateUser(ctx, alice.ID, UserPatch{Roles: []string{models.RoleAdmin}, Newsletter: &off})
		require.NoError(t, err)
		assert.True(t, updated.HasRole(models.RoleAdmin))
		assert.True(t, updated.HasRole(models.RoleUser))
		assert.False(t, updated.Newsletter)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.DeleteUser(ctx, alice.ID))
		assert.True(t, apperror.Is(s.DeleteUser(ctx, alice.ID), apperror.KindNotFound))
	})
}
