package normalize

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/pable/go-hll-metrics/internal/model"
)

const batch = `[
  {"id": 3, "event_time": "2025-03-02T20:00:10", "type": "KILL", "server": "1",
   "player1_id": "765", "player1_name": "Able", "player2_id": "766", "player2_name": "Baker",
   "weapon": "M1 GARAND", "content": "Able -> Baker", "raw": "[KILL] Able -> Baker"},
  {"id": 1, "event_time": "2025-03-02T20:00:00Z", "creation_time": "2025-03-02T20:00:01Z",
   "type": "MATCH START", "server": "1", "content": "MATCH START CARENTAN Warfare"},
  {"id": 2, "event_time": "2025-03-02T21:00:00+01:00", "type": " CONNECTED ", "server": "1",
   "player1_id": "767", "player1_name": null, "weapon": ""}
]`

// ---- Decode tests ----

func TestDecode_NormalizesAndSorts(t *testing.T) {
	events, rejected, err := Decode(strings.NewReader(batch))
	require.NoError(t, err)
	require.Empty(t, rejected)
	require.Len(t, events, 3)

	// ids 1 and 2 share an instant once the offset is applied
	require.Equal(t, []int64{1, 2, 3}, []int64{events[0].ID, events[1].ID, events[2].ID})

	start := events[0]
	require.Equal(t, model.EventMatchStart, start.Type)
	require.Equal(t, time.Date(2025, 3, 2, 20, 0, 1, 0, time.UTC), start.CreationTime)
	require.Nil(t, start.Player1)

	conn := events[1]
	require.Equal(t, model.EventConnected, conn.Type)
	require.Equal(t, "767", conn.Player1ID())
	require.Equal(t, "", conn.Player1.Name)
	require.Nil(t, conn.Weapon)
	require.True(t, conn.CreationTime.IsZero())

	kill := events[2]
	require.Equal(t, time.UTC, kill.EventTime.Location())
	require.Equal(t, "Able", kill.Player1.Name)
	require.Equal(t, "766", kill.Player2ID())
	require.Equal(t, "M1 GARAND", *kill.Weapon)
	require.Equal(t, "[KILL] Able -> Baker", kill.Raw)
}

func TestDecode_RejectsInvalidRecords(t *testing.T) {
	in := `[
	  {"id": 1, "event_time": "2025-03-02T20:00:00Z", "type": "KILL", "server": "1"},
	  {"event_time": "2025-03-02T20:00:00Z", "type": "KILL", "server": "1"},
	  {"id": 3, "event_time": "2025-03-02T20:00:00Z", "server": "1"},
	  {"id": 4, "event_time": "2025-03-02T20:00:00Z", "type": "KILL"},
	  {"id": 5, "type": "KILL", "server": "1"},
	  {"id": 6, "event_time": "yesterday", "type": "KILL", "server": "1"}
	]`
	events, rejected, err := Decode(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Len(t, rejected, 5)

	require.ErrorIs(t, rejected[0], ErrMissingField)
	require.Equal(t, 1, rejected[0].Index)
	require.Equal(t, int64(3), rejected[1].ID)
	require.ErrorIs(t, rejected[4], ErrBadTimestamp)
}

func TestDecode_MalformedDocument(t *testing.T) {
	_, _, err := Decode(strings.NewReader(`{"id": 1}`))
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2025, 3, 2, 20, 0, 0, 500000000, time.UTC)
	cases := []string{
		"2025-03-02T20:00:00.5Z",
		"2025-03-02T20:00:00.5",
		"2025-03-02 20:00:00.5",
		"2025-03-02T22:00:00.5+02:00",
		" 2025-03-02 20:00:00.500+00:00 ",
	}
	for _, in := range cases {
		got, err := ParseTime(in)
		if err != nil {
			t.Errorf("ParseTime(%q): %v", in, err)
			continue
		}
		if !got.Equal(want) || got.Location() != time.UTC {
			t.Errorf("ParseTime(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseTime("02/03/2025"); !errors.Is(err, ErrBadTimestamp) {
		t.Errorf("expected ErrBadTimestamp, got %v", err)
	}
}

func TestSort_TieBrokenByID(t *testing.T) {
	at := time.Date(2025, 3, 2, 20, 0, 0, 0, time.UTC)
	events := []model.RawEvent{
		{ID: 9, EventTime: at},
		{ID: 4, EventTime: at.Add(time.Second)},
		{ID: 2, EventTime: at},
	}
	Sort(events)
	require.Equal(t, int64(2), events[0].ID)
	require.Equal(t, int64(9), events[1].ID)
	require.Equal(t, int64(4), events[2].ID)
}

// ---- File tests ----

func TestListFiles_NaturalOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"logs_10.json", "logs_2.json.gz", "logs_1.json.zst", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "logs_3.json"), 0o755))

	files, err := ListFiles(dir)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "logs_1.json.zst"),
		filepath.Join(dir, "logs_2.json.gz"),
		filepath.Join(dir, "logs_10.json"),
	}, files)
}

func TestLoadFile_Compressed(t *testing.T) {
	dir := t.TempDir()

	gzPath := filepath.Join(dir, "a.json.gz")
	f, err := os.Create(gzPath)
	require.NoError(t, err)
	gw := gzip.NewWriter(f)
	_, err = gw.Write([]byte(batch))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.NoError(t, f.Close())

	zstPath := filepath.Join(dir, "b.json.zst")
	f, err = os.Create(zstPath)
	require.NoError(t, err)
	zw, err := zstd.NewWriter(f)
	require.NoError(t, err)
	_, err = zw.Write([]byte(batch))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	for _, p := range []string{gzPath, zstPath} {
		events, rejected, err := LoadFile(p)
		require.NoError(t, err, p)
		require.Empty(t, rejected)
		require.Len(t, events, 3, p)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, _, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
