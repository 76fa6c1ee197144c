package format

import (
	"strings"
	"testing"

	"github.com/kunquat/kunquat-go/pkg/tstamp"
)

const sampleSong = `
channels: 2
instruments:
  - name: lead
    wave: square
    duty: 0.5
    ref_pitch: 440
    attack: 0.01
    decay: 0.05
    sustain: 0.7
    release: 0.2
channel_instrument: [0, 0]
patterns:
  - length: 4
    columns:
      - - {pos: 0, event: note_on, arg: "0"}
        - {pos: 2, event: note_off}
      - []
order:
  - pattern: 0
`

func TestLoadDecodesChannelsAndInstruments(t *testing.T) {
	song, err := Load(strings.NewReader(sampleSong))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if song.Module.NumChannels != 2 {
		t.Fatalf("expected 2 channels, got %d", song.Module.NumChannels)
	}
	if len(song.Instruments) != 1 || song.Instruments[0].Name != "lead" {
		t.Fatalf("expected one instrument named lead, got %+v", song.Instruments)
	}
	if song.ChannelInstrument[0] != 0 || song.ChannelInstrument[1] != 0 {
		t.Fatalf("expected both channels routed to instrument 0, got %v", song.ChannelInstrument)
	}
}

func TestLoadBuildsPatternTriggersAtCorrectPositions(t *testing.T) {
	song, err := Load(strings.NewReader(sampleSong))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(song.Module.Patterns) != 1 {
		t.Fatalf("expected one pattern, got %d", len(song.Module.Patterns))
	}
	pat := song.Module.Patterns[0]
	if tstamp.Compare(pat.Length, tstamp.New(4, 0)) != 0 {
		t.Fatalf("expected pattern length 4 beats, got %+v", pat.Length)
	}

	col := pat.Columns[0]
	if len(col.Rows) != 2 {
		t.Fatalf("expected 2 trigger rows in column 0, got %d", len(col.Rows))
	}
	if col.Rows[0].Triggers[0].EventName != "note_on" || col.Rows[0].Triggers[0].Expr != "0" {
		t.Fatalf("unexpected first trigger: %+v", col.Rows[0].Triggers[0])
	}
	if tstamp.Compare(col.Rows[1].Pos, tstamp.New(2, 0)) != 0 {
		t.Fatalf("expected second row at beat 2, got %+v", col.Rows[1].Pos)
	}
}

func TestLoadRejectsZeroChannels(t *testing.T) {
	_, err := Load(strings.NewReader("channels: 0\n"))
	if err == nil {
		t.Fatalf("expected an error for a channel-less song")
	}
}

func TestLoadRejectsOrderReferencingUndefinedPattern(t *testing.T) {
	doc := `
channels: 1
order:
  - pattern: 3
`
	_, err := Load(strings.NewReader(doc))
	if err == nil {
		t.Fatalf("expected an error for an order entry with no matching pattern")
	}
}
