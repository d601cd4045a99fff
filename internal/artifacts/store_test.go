package artifacts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-forecaster/internal/types"
)

var day = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func TestResolve_Templates(t *testing.T) {
	cases := []struct {
		key  Key
		want string
	}{
		{Key{Kind: KindDataset, Symbol: "aapl"}, "datasets/AAPL_daily_data.csv"},
		{Key{Kind: KindSentimentTable, Symbol: "AAPL", Date: day}, "sentiment/2024-03-15/AAPL_sentiment.csv"},
		{Key{Kind: KindChart, Symbol: "AAPL", Date: day}, "charts/2024-03-15/AAPL_chart.png"},
		{Key{Kind: KindSummary, Symbol: "AAPL", Date: day}, "summary/2024-03-15/AAPL_summary.csv"},
		{Key{Kind: KindCombinedSummary, Date: day}, "summary/2024-03-15/all_symbols_summary.csv"},
		{Key{Kind: KindPrediction, Symbol: "AAPL", Date: day, Variant: types.VariantSentiment}, "results/2024-03-15/AAPL_lstm_senti_prediction.csv"},
		{Key{Kind: KindPredictionTable, Date: day, Variant: types.VariantPrice}, "results/2024-03-15/lstm.csv"},
		{Key{Kind: KindMetrics, Symbol: "AAPL", Variant: types.VariantPrice}, "model-metrics/lstm/AAPL_lstm_model_metrics.csv"},
		{Key{Kind: KindTestPlot, Symbol: "AAPL", Variant: types.VariantPrice}, "model-metrics/lstm/AAPL_lstm_test_plot.png"},
		{Key{Kind: KindLossPlot, Symbol: "AAPL", Variant: types.VariantPrice}, "model-metrics/lstm/AAPL_lstm_loss_plot.png"},
	}
	for _, tc := range cases {
		t.Run(tc.key.Kind.String(), func(t *testing.T) {
			got, err := Resolve(tc.key)
			require.NoError(t, err)
			assert.Equal(t, filepath.FromSlash(tc.want), got)

			again, err := Resolve(tc.key)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestResolve_Rejects(t *testing.T) {
	bad := []Key{
		{Kind: KindDataset, Symbol: ""},
		{Kind: KindDataset, Symbol: "../etc"},
		{Kind: KindDataset, Symbol: "A/B"},
		{Kind: KindSentimentTable, Symbol: "AAPL"},
		{Kind: KindPrediction, Symbol: "AAPL", Date: day},
		{Kind: KindMetrics, Symbol: "AAPL", Variant: "gru"},
	}
	for _, k := range bad {
		_, err := Resolve(k)
		assert.ErrorIs(t, err, types.ErrValidation, "key %+v", k)
	}
}

func TestStore_TableRoundTripAndOverwrite(t *testing.T) {
	s := NewStore(t.TempDir())
	k := Key{Kind: KindSummary, Symbol: "AAPL", Date: day}

	assert.False(t, s.Exists(k))
	_, err := s.ReadTable(k)
	assert.ErrorIs(t, err, types.ErrNotFound)

	first := Table{Header: []string{"a", "b"}, Rows: [][]string{{"1", "2"}}}
	require.NoError(t, s.WriteTable(k, first))
	require.NoError(t, s.WriteTable(k, first))
	assert.True(t, s.Exists(k))

	second := Table{Header: []string{"a", "b"}, Rows: [][]string{{"3", "4"}, {"5", "6"}}}
	require.NoError(t, s.WriteTable(k, second))

	got, err := s.ReadTable(k)
	require.NoError(t, err)
	assert.Equal(t, second, got)
	assert.Equal(t, 1, got.Column("b"))
	assert.Equal(t, -1, got.Column("c"))
	assert.Equal(t, "6", got.Maps()[1]["b"])

	entries, err := os.ReadDir(filepath.Dir(mustPath(t, s, k)))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestStore_Records(t *testing.T) {
	s := NewStore(t.TempDir())
	k := Key{Kind: KindSentimentTable, Symbol: "TSLA", Date: day}
	in := []types.SentimentRecord{
		{Date: "2024-03-15", Title: "Tesla, up", Description: "d", Sentiment: types.LabelPositive, Confidence: 0.9},
		{Date: "2024-03-14", Title: "Tesla down", Description: "", Sentiment: types.LabelNegative, Confidence: 0.75},
	}
	require.NoError(t, s.WriteRecords(k, &in))

	var out []types.SentimentRecord
	require.NoError(t, s.ReadRecords(k, &out))
	assert.Equal(t, in, out)

	tbl, err := s.ReadTable(k)
	require.NoError(t, err)
	assert.Equal(t, []string{"date", "title", "description", "sentiment", "confidence"}, tbl.Header)
}

func TestStore_Blob(t *testing.T) {
	s := NewStore(t.TempDir())
	k := Key{Kind: KindChart, Symbol: "AAPL", Date: day}
	_, err := s.ReadBlob(k)
	assert.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, s.WriteBlob(k, []byte("png")))
	b, err := s.ReadBlob(k)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), b)
}

func TestStore_Remove(t *testing.T) {
	s := NewStore(t.TempDir())
	k := Key{Kind: KindSummary, Symbol: "AAPL", Date: day}

	require.NoError(t, s.Remove(k), "missing file")

	require.NoError(t, s.WriteBlob(k, []byte("x")))
	require.True(t, s.Exists(k))
	require.NoError(t, s.Remove(k))
	assert.False(t, s.Exists(k))

	assert.ErrorIs(t, s.Remove(Key{Kind: KindSentimentTable, Symbol: "AAPL"}), types.ErrValidation)
}

func TestEffectiveDate(t *testing.T) {
	co, err := ParseCutover("02:45")
	require.NoError(t, err)

	at0200 := EffectiveDate(time.Date(2024, 3, 15, 2, 0, 0, 0, time.UTC), co)
	at0300 := EffectiveDate(time.Date(2024, 3, 15, 3, 0, 0, 0, time.UTC), co)
	assert.Equal(t, "2024-03-14", at0200.Format(types.DateLayout))
	assert.Equal(t, "2024-03-15", at0300.Format(types.DateLayout))
	assert.Equal(t, 24*time.Hour, at0300.Sub(at0200))

	boundary := EffectiveDate(time.Date(2024, 3, 15, 2, 45, 0, 0, time.UTC), co)
	assert.Equal(t, at0300, boundary)

	ist := time.FixedZone("IST", 19800)
	local := EffectiveDate(time.Date(2024, 3, 15, 7, 0, 0, 0, ist), co)
	assert.Equal(t, "2024-03-14", local.Format(types.DateLayout), "01:30 UTC is before the cutover")

	_, err = ParseCutover("7pm")
	assert.Error(t, err)
	assert.Equal(t, "02:45", co.String())
}

func mustPath(t *testing.T, s *Store, k Key) string {
	t.Helper()
	p, err := s.Path(k)
	require.NoError(t, err)
	return p
}
