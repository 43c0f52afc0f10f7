package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		description string
		secret      Code
		guess       Code
		expected    Feedback
	}{
		{
			description: "all exact",
			secret:      Code{Red, Blue, Green, Yellow},
			guess:       Code{Red, Blue, Green, Yellow},
			expected:    Feedback{Exact: 4},
		},
		{
			description: "nothing in common",
			secret:      Code{Red, Red, Red, Red},
			guess:       Code{Blue, Blue, Blue, Blue},
			expected:    Feedback{},
		},
		{
			description: "duplicate colors on both sides",
			secret:      Code{Red, Red, Blue, Blue},
			guess:       Code{Red, Blue, Red, Blue},
			expected:    Feedback{Exact: 2, Partial: 2},
		},
		{
			description: "mixed exact and partial",
			secret:      Code{Red, Red, Green, Blue},
			guess:       Code{Red, Green, Red, Yellow},
			expected:    Feedback{Exact: 1, Partial: 2},
		},
		{
			description: "exact match consumes the only occurrence",
			secret:      Code{Red, Blue, Green, Yellow},
			guess:       Code{Red, Red, Red, Red},
			expected:    Feedback{Exact: 1},
		},
		{
			description: "all partial",
			secret:      Code{Red, Blue, Green, Yellow},
			guess:       Code{Yellow, Green, Blue, Red},
			expected:    Feedback{Partial: 4},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			assert.Equal(t, tc.expected, Score(tc.secret, tc.guess))
		})
	}
}

func TestScoreBounds(t *testing.T) {
	t.Parallel()

	// every pair of 3-slot codes over the palette
	var codes []Code
	for _, a := range Palette {
		for _, b := range Palette {
			for _, c := range Palette {
				codes = append(codes, Code{a, b, c})
			}
		}
	}
	for _, secret := range codes {
		for _, guess := range codes {
			fb := Score(secret, guess)
			require.GreaterOrEqual(t, fb.Exact, 0)
			require.GreaterOrEqual(t, fb.Partial, 0)
			require.LessOrEqual(t, fb.Exact+fb.Partial, 3)
			require.Equal(t, secret.Equal(guess), fb.Exact == 3, "secret=%s guess=%s", secret, guess)
		}
	}
}

func TestNewGame(t *testing.T) {
	t.Parallel()

	t.Run("random secret", func(t *testing.T) {
		g, err := New(4, 10, nil)
		require.NoError(t, err)
		assert.NotEmpty(t, g.ID)
		assert.True(t, g.Secret.Complete(4))
		assert.Empty(t, g.History)
		assert.False(t, g.GameOver)
	})

	t.Run("given secret is copied", func(t *testing.T) {
		secret := Code{Red, Blue, Green, Yellow}
		g, err := New(4, 0, secret)
		require.NoError(t, err)
		secret[0] = Cyan
		assert.Equal(t, Red, g.Secret[0])
	})

	t.Run("secret of wrong length", func(t *testing.T) {
		_, err := New(4, 0, Code{Red, Blue})
		assert.ErrorIs(t, err, ErrInvalidGuess)
	})

	t.Run("slot count out of range", func(t *testing.T) {
		_, err := New(12, 0, nil)
		assert.ErrorIs(t, err, ErrInvalidSlotCount)
	})
}

func TestApplyGuess(t *testing.T) {
	t.Parallel()

	secret := Code{Red, Blue, Green, Yellow}

	t.Run("win ends the game", func(t *testing.T) {
		g, err := New(4, 10, secret)
		require.NoError(t, err)

		a, err := g.ApplyGuess(Code{Red, Blue, Green, Yellow})
		require.NoError(t, err)
		assert.Equal(t, 4, a.Feedback.Exact)
		assert.True(t, g.GameOver)
		assert.True(t, g.Won)

		_, err = g.ApplyGuess(Code{Red, Blue, Green, Yellow})
		assert.ErrorIs(t, err, ErrGameOver)
		assert.Len(t, g.History, 1)
	})

	t.Run("attempt cap exhausts the game", func(t *testing.T) {
		g, err := New(4, 2, secret)
		require.NoError(t, err)

		_, err = g.ApplyGuess(Code{Cyan, Cyan, Cyan, Cyan})
		require.NoError(t, err)
		assert.False(t, g.GameOver)
		_, err = g.ApplyGuess(Code{Cyan, Cyan, Cyan, Cyan})
		require.NoError(t, err)
		assert.True(t, g.GameOver)
		assert.False(t, g.Won)
	})

	t.Run("incomplete guess is rejected without mutation", func(t *testing.T) {
		g, err := New(4, 10, secret)
		require.NoError(t, err)

		_, err = g.ApplyGuess(Code{Red, "", Green, Yellow})
		assert.ErrorIs(t, err, ErrInvalidGuess)
		assert.Empty(t, g.History)
	})

	t.Run("reset clears history", func(t *testing.T) {
		g, err := New(4, 10, secret)
		require.NoError(t, err)
		_, _ = g.ApplyGuess(Code{Red, Blue, Green, Yellow})

		require.NoError(t, g.Reset())
		assert.Empty(t, g.History)
		assert.False(t, g.GameOver)
		assert.False(t, g.Won)
	})
}

func TestStateHidesSecretAndCopiesHistory(t *testing.T) {
	g, err := New(4, 0, Code{Red, Blue, Green, Yellow})
	require.NoError(t, err)
	_, err = g.ApplyGuess(Code{Red, Red, Red, Red})
	require.NoError(t, err)

	st := g.State()
	st.History[0].Feedback.Exact = 99
	assert.Equal(t, 1, g.History[0].Feedback.Exact)
	assert.Equal(t, g.ID, st.ID)
	assert.Equal(t, 4, st.SlotCount)
}

func TestParseCode(t *testing.T) {
	code, err := ParseCode([]string{"RED", " blue ", "Cyan"})
	require.NoError(t, err)
	assert.Equal(t, Code{Red, Blue, Cyan}, code)

	_, err = ParseCode([]string{"red", "orange"})
	assert.ErrorIs(t, err, ErrInvalidColor)
}
