package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitWriterLevels(t *testing.T) {
	defer Init(false, false)

	var buf bytes.Buffer
	InitWriter(&buf, false, false)
	L().Debug().Msg("hidden")
	L().Info().Msg("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug line emitted at info level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("info line missing")
	}

	buf.Reset()
	InitWriter(&buf, true, true)
	L().Debug().Msg("visible debug")
	if !strings.Contains(buf.String(), "visible debug") {
		t.Errorf("debug line missing in pretty mode: %q", buf.String())
	}
	if !IsPrettyMode() {
		t.Error("IsPrettyMode = false after pretty init")
	}
}

func TestWithArchive(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	log := WithArchive("extract", "Ahri.wad.client")
	log.Info().Msg("test message")

	if !bytes.Contains(buf.Bytes(), []byte(`"phase":"extract"`)) {
		t.Errorf("expected phase field in output, got: %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"archive":"Ahri.wad.client"`)) {
		t.Errorf("expected archive field in output, got: %s", buf.String())
	}
}
