package ingest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func repackDatalink(t *testing.T, xmlDoc string, opts Options) ([]byte, *Stats) {
	t.Helper()

	var out bytes.Buffer
	stats, err := Datalink(strings.NewReader(xmlDoc), testMtime, &out, opts)
	require.NoError(t, err)

	return out.Bytes(), stats
}

func TestDatalinkBaseTimestamp(t *testing.T) {
	t.Run("Milliseconds", func(t *testing.T) {
		doc := `<mandala time_ms="1700000000000"><fields>a,b</fields><D t="1">1,2</D></mandala>`
		data, _ := repackDatalink(t, doc, Options{})
		hdr, _ := scanStream(t, data)
		require.Equal(t, uint64(1700000000000), hdr.StartTimestamp)
	})

	t.Run("SecondsScaledToMs", func(t *testing.T) {
		doc := `<mandala time_ms="1700000000"><fields>a,b</fields><D t="1">1,2</D></mandala>`
		data, _ := repackDatalink(t, doc, Options{})
		hdr, _ := scanStream(t, data)
		require.Equal(t, uint64(1700000000000), hdr.StartTimestamp)
	})

	t.Run("UTCAttribute", func(t *testing.T) {
		doc := `<mandala UTC="1700000001"><fields>a,b</fields><D t="1">1,2</D></mandala>`
		data, _ := repackDatalink(t, doc, Options{})
		hdr, _ := scanStream(t, data)
		require.Equal(t, uint64(1700000001000), hdr.StartTimestamp)
	})

	t.Run("Pre2000FallsBackToMtime", func(t *testing.T) {
		doc := `<mandala time_ms="946684799000"><fields>a,b</fields><D t="1">1,2</D></mandala>`
		data, _ := repackDatalink(t, doc, Options{})
		hdr, _ := scanStream(t, data)
		require.Equal(t, uint64(testMtime.UnixMilli()), hdr.StartTimestamp)
	})

	t.Run("MissingFallsBackToMtime", func(t *testing.T) {
		doc := `<mandala><fields>a,b</fields><D t="1">1,2</D></mandala>`
		data, _ := repackDatalink(t, doc, Options{})
		hdr, _ := scanStream(t, data)
		require.Equal(t, uint64(testMtime.UnixMilli()), hdr.StartTimestamp)
	})
}

func TestDatalinkRows(t *testing.T) {
	doc := `<mandala time_ms="1700000000000"><fields>alt,spd,vsp</fields>` +
		`<S t="10">100,30,1</S>` +
		`<D t="20">101,30,2</D>` +
		`</mandala>`

	data, stats := repackDatalink(t, doc, Options{})
	_, records := scanStream(t, data)

	fields := byKind(records, "field")
	require.Len(t, fields, 3)
	require.Equal(t, "alt", fields[0].name)

	ts := byKind(records, "ts")
	require.Len(t, ts, 2)
	require.Equal(t, uint32(10), ts[0].ms)
	require.Equal(t, uint32(20), ts[1].ms)

	samples := byKind(records, "sample")
	require.Len(t, samples, 5, "spd unchanged in the second row")
	require.Equal(t, float64(100), samples[0].value)
	require.False(t, samples[0].uplink)
	require.Equal(t, 6, stats.Samples, "counted before value-change suppression")
}

func TestDatalinkRowTimestampPriority(t *testing.T) {
	doc := `<mandala time_ms="1700000000000"><fields>a,b</fields>` +
		`<D ts="7" UTC="99">1,2</D>` +
		`<D time_ms="42">3,4</D>` +
		`</mandala>`

	data, _ := repackDatalink(t, doc, Options{})
	_, records := scanStream(t, data)

	ts := byKind(records, "ts")
	require.Len(t, ts, 2)
	require.Equal(t, uint32(7), ts[0].ms, "ts attribute outranks UTC")
	require.Equal(t, uint32(42), ts[1].ms)
}

func TestDatalinkSynthesizedFields(t *testing.T) {
	doc := `<mandala time_ms="1700000000000"><D t="1">5,6,7,8</D></mandala>`

	data, _ := repackDatalink(t, doc, Options{})
	_, records := scanStream(t, data)

	fields := byKind(records, "field")
	require.Len(t, fields, 4)
	require.Equal(t, "#0", fields[0].name)
	require.Equal(t, "#3", fields[3].name)
}

func TestDatalinkEvents(t *testing.T) {
	doc := `<mandala time_ms="1700000000000"><fields>a,b</fields>` +
		`<D t="1">1,2</D>` +
		`<event name="link" t="5" rssi="-70"/>` +
		`<evt name="link" t="9" rssi="-80"/>` +
		`</mandala>`

	data, stats := repackDatalink(t, doc, Options{})
	_, records := scanStream(t, data)

	schemas := byKind(records, "evtid")
	require.Len(t, schemas, 1)
	require.Equal(t, "link", schemas[0].name)
	require.Equal(t, []string{"rssi"}, schemas[0].strs)

	events := byKind(records, "evt")
	require.Len(t, events, 2)
	require.Equal(t, []string{"-70"}, events[0].strs)
	require.Equal(t, []string{"-80"}, events[1].strs)
	require.Equal(t, 2, stats.Events)
}

func TestDatalinkJSOCapture(t *testing.T) {
	doc := `<mandala time_ms="1700000000000"><fields>a,b</fields>` +
		`<D t="1">1,2</D>` +
		`<status link="ok"><rssi>-70</rssi></status>` +
		`</mandala>`

	t.Run("Disabled", func(t *testing.T) {
		data, _ := repackDatalink(t, doc, Options{})
		_, records := scanStream(t, data)
		require.Len(t, byKind(records, "jso"), 1)
	})

	t.Run("Enabled", func(t *testing.T) {
		data, stats := repackDatalink(t, doc, Options{IncludeJSO: true})
		_, records := scanStream(t, data)

		blobs := byKind(records, "jso")
		require.Len(t, blobs, 2)
		require.Equal(t, "status", blobs[1].name)
		require.Equal(t, 1, stats.Blobs)

		obj := decodeJSO(t, blobs[1].payload)
		require.Equal(t, "ok", obj["@_link"])
		require.Equal(t, float64(-70), obj["rssi"])
	})
}

func TestDatalinkEmptyDocument(t *testing.T) {
	var out bytes.Buffer
	_, err := Datalink(strings.NewReader(""), testMtime, &out, Options{})
	require.Error(t, err)
}
