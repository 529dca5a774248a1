package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murphylan/scansign-sub001/internal/model"
)

func newLotteryActivity(t *testing.T, e *Engine, prizes []model.Prize, allowRepeat bool) *model.Activity {
	t.Helper()
	return mustCreate(t, e, CreateRequest{Kind: model.KindLottery, Title: "raffle", Config: model.Config{
		Prizes:         prizes,
		AllowRepeatWin: allowRepeat,
	}})
}

func enter(t *testing.T, e *Engine, id string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := e.SubmitEntry(context.Background(), id, fmt.Sprintf("u%d", i), fmt.Sprintf("user %d", i))
		require.NoError(t, err)
	}
}

func TestEntryDedupByIdentity(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	a := newLotteryActivity(t, e, []model.Prize{{Name: "tv", TotalCount: 1}}, false)

	first, err := e.SubmitEntry(ctx, a.ID, "u1", "Alice")
	require.NoError(t, err)
	assert.True(t, first.IsNew)

	second, err := e.SubmitEntry(ctx, a.ID, "u1", "Alice again")
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.Equal(t, first.Participant.ID, second.Participant.ID)

	got, err := e.GetByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stats.Participants)
}

func TestDrawWithoutParticipantsFails(t *testing.T) {
	e, _, _ := newTestEngine(t)
	a := newLotteryActivity(t, e, []model.Prize{{Name: "tv", TotalCount: 1}}, false)

	_, err := e.Draw(context.Background(), a.ID)
	assert.True(t, IsConflict(err))
}

func TestPrizeNeverOverdrawn(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	a := newLotteryActivity(t, e, []model.Prize{{ID: "P", Name: "tv", TotalCount: 1}}, true)
	enter(t, e, a.ID, 5)

	res, err := e.Draw(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "P", res.Prize.ID)
	assert.Equal(t, 0, res.Prize.RemainingCount)

	// The only prize is exhausted: a second draw must fail, never award P
	// again, and never drive the stock negative.
	_, err = e.Draw(ctx, a.ID)
	assert.True(t, IsConflict(err))

	got, err := e.GetByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Config.Prizes[0].RemainingCount)

	winners, err := e.Winners(a.ID)
	require.NoError(t, err)
	assert.Len(t, winners, 1)
}

func TestDrawExcludesPastWinners(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	a := newLotteryActivity(t, e, []model.Prize{{Name: "mug", TotalCount: 10}}, false)
	enter(t, e, a.ID, 3)

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		res, err := e.Draw(ctx, a.ID)
		require.NoError(t, err)
		assert.False(t, seen[res.Winner.ID], "participant %s won twice", res.Winner.ID)
		seen[res.Winner.ID] = true
	}

	// Everyone has won once; with repeat wins disallowed the pool is empty.
	_, err := e.Draw(ctx, a.ID)
	assert.True(t, IsConflict(err))
}

func TestDrawAllowRepeatWinKeepsPool(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	a := newLotteryActivity(t, e, []model.Prize{{Name: "mug", TotalCount: 5}}, true)
	enter(t, e, a.ID, 1)

	for i := 0; i < 5; i++ {
		res, err := e.Draw(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "user 0", res.Winner.Name)
	}
	_, err := e.Draw(ctx, a.ID)
	assert.True(t, IsConflict(err), "stock exhausted")
}

func TestPrizeSelectionFollowsWeights(t *testing.T) {
	// Empirical check: with weights 3:1 and plenty of stock, the heavy prize
	// should win roughly three quarters of draws. Loose bounds keep the test
	// stable across seeds.
	const draws = 2000
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	a := newLotteryActivity(t, e, []model.Prize{
		{ID: "heavy", Name: "tv", TotalCount: draws, Weight: 3},
		{ID: "light", Name: "mug", TotalCount: draws, Weight: 1},
	}, true)
	enter(t, e, a.ID, 10)

	heavy := 0
	for i := 0; i < draws; i++ {
		res, err := e.Draw(ctx, a.ID)
		require.NoError(t, err)
		if res.Prize.ID == "heavy" {
			heavy++
		}
	}
	ratio := float64(heavy) / draws
	assert.InDelta(t, 0.75, ratio, 0.05, "heavy prize won %d of %d draws", heavy, draws)
}

func TestWinnerSelectionIsFair(t *testing.T) {
	// Every eligible participant must have positive win probability. Run
	// many single-winner rounds and check the counts are roughly uniform.
	const rounds = 1000
	const participants = 4
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	counts := map[string]int{}
	for i := 0; i < rounds; i++ {
		a := newLotteryActivity(t, e, []model.Prize{{Name: "mug", TotalCount: 1}}, false)
		enter(t, e, a.ID, participants)
		res, err := e.Draw(ctx, a.ID)
		require.NoError(t, err)
		counts[res.Winner.Name]++
	}

	require.Len(t, counts, participants, "every participant should win at least once")
	expected := float64(rounds) / participants
	for name, n := range counts {
		assert.InDelta(t, expected, float64(n), expected*0.4, "winner %s count %d", name, n)
	}
}

func TestDrawPublishesWinnerEvent(t *testing.T) {
	e, b, _ := newTestEngine(t)
	ctx := context.Background()
	a := newLotteryActivity(t, e, []model.Prize{{ID: "P", Name: "tv", TotalCount: 1}}, false)
	enter(t, e, a.ID, 1)
	sub := b.Subscribe(a.ID)

	res, err := e.Draw(ctx, a.ID)
	require.NoError(t, err)

	ev := <-sub.C
	assert.Equal(t, EventWinnerDrawn, ev.Type)
	payload, ok := ev.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, res.Winner.ID, payload["participant_id"])
	assert.Equal(t, "P", payload["prize_id"])
}
