package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"gamecatalog/backend/internal/catalog"
	"gamecatalog/backend/pkg/apperror"
)

var (
	seedEditors = []struct{ name, country string }{
		{"Nintendo", "Japan"},
		{"Ubisoft", "France"},
		{"CD Projekt", "Poland"},
		{"Paradox Interactive", "Sweden"},
		{"Bethesda Softworks", "United States"},
	}
	seedCategories = []string{
		"Action", "Adventure", "RPG", "Strategy", "Simulation",
		"Puzzle", "Racing", "Sports", "Platformer", "Horror",
	}
	titleWords = []string{
		"Shadow", "Crystal", "Iron", "Lost", "Eternal", "Neon", "Silent", "Broken",
		"Kingdom", "Legends", "Frontier", "Odyssey", "Tactics", "Horizon", "Echoes", "Rebellion",
	}
)

// SeedOptions sizes the demo data set.
type SeedOptions struct {
	Games    int
	Upcoming int
	Email    string
	Password string
	Seed     uint64
}

// SeedResult counts what Seed created.
type SeedResult struct {
	Editors    int
	Categories int
	Games      int
	Upcoming   int
	User       bool
}

// Seed fills the catalog with demo data through the store. Past games are
// released up to ten years before yesterday and upcoming ones within the next
// six days, so the digest has something to send. An existing user with the
// same email is left alone.
func Seed(ctx context.Context, store *catalog.Store, opts SeedOptions, now time.Time) (SeedResult, error) {
	var result SeedResult
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	editorIDs := make([]uint, 0, len(seedEditors))
	for _, e := range seedEditors {
		editor, err := store.CreateEditor(ctx, e.name, e.country)
		if err != nil {
			return result, fmt.Errorf("seed editor %s: %w", e.name, err)
		}
		editorIDs = append(editorIDs, editor.ID)
		result.Editors++
	}

	categoryIDs := make([]uint, 0, len(seedCategories))
	for _, name := range seedCategories {
		category, err := store.CreateCategory(ctx, name)
		if err != nil {
			return result, fmt.Errorf("seed category %s: %w", name, err)
		}
		categoryIDs = append(categoryIDs, category.ID)
		result.Categories++
	}

	tenYears := 10 * 365 * 24 * time.Hour
	for i := 0; i < opts.Games+opts.Upcoming; i++ {
		upcoming := i >= opts.Games
		release := now.AddDate(0, 0, -1).Add(-time.Duration(rng.Int64N(int64(tenYears))))
		if upcoming {
			release = now.Add(time.Duration(1+rng.IntN(6)) * 24 * time.Hour)
		}
		draft := catalog.VideoGameDraft{
			Title:       randomTitle(rng),
			ReleaseDate: release.Truncate(time.Second),
			EditorID:    editorIDs[rng.IntN(len(editorIDs))],
			CategoryIDs: pick(rng, categoryIDs, 1+rng.IntN(3)),
		}
		if _, err := store.CreateVideoGame(ctx, draft); err != nil {
			return result, fmt.Errorf("seed video game %q: %w", draft.Title, err)
		}
		if upcoming {
			result.Upcoming++
		} else {
			result.Games++
		}
	}

	if opts.Email == "" {
		return result, nil
	}
	_, err := store.CreateUser(ctx, catalog.UserDraft{Email: opts.Email, Password: opts.Password})
	switch {
	case apperror.Is(err, apperror.KindConflict):
	case err != nil:
		return result, fmt.Errorf("seed user %s: %w", opts.Email, err)
	default:
		result.User = true
	}
	return result, nil
}

func randomTitle(rng *rand.Rand) string {
	return fmt.Sprintf("%s %s %d",
		titleWords[rng.IntN(len(titleWords))],
		titleWords[rng.IntN(len(titleWords))],
		1+rng.IntN(4))
}

// pick returns n distinct ids from ids.
func pick(rng *rand.Rand, ids []uint, n int) []uint {
	order := rng.Perm(len(ids))
	if n > len(ids) {
		n = len(ids)
	}
	picked := make([]uint, n)
	for i := range picked {
		picked[i] = ids[order[i]]
	}
	return picked
}

func printSeedResult(out io.Writer, r SeedResult) {
	fmt.Fprintf(out, "Seeded %d editors, %d categories, %d video games (%d upcoming)\n",
		r.Editors, r.Categories, r.Games+r.Upcoming, r.Upcoming)
	if r.User {
		fmt.Fprintln(out, "Created demo user")
	}
}

func newSeedCmd(build builder) *cobra.Command {
	opts := SeedOptions{}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the catalog with demo data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if opts.Seed == 0 {
				opts.Seed = uint64(time.Now().UnixNano())
			}
			result, err := Seed(cmd.Context(), a.Store, opts, time.Now().In(a.Location))
			if err != nil {
				return err
			}
			printSeedResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Games, "games", 20, "number of already released games")
	cmd.Flags().IntVar(&opts.Upcoming, "upcoming", 3, "number of games releasing in the next days")
	cmd.Flags().StringVar(&opts.Email, "email", "demo@example.com", "demo user email, empty to skip")
	cmd.Flags().StringVar(&opts.Password, "password", "Password123!", "demo user password")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "random seed, 0 for a random one")
	return cmd
}
