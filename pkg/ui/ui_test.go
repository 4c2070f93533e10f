package ui

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/arthur-debert/prefixer/pkg/clobber"
	"github.com/arthur-debert/prefixer/pkg/linkscript"
	"github.com/arthur-debert/prefixer/pkg/transaction"
	"github.com/arthur-debert/prefixer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repo(name, version string) *types.RepoDataRecord {
	return &types.RepoDataRecord{PackageRecord: types.PackageRecord{Name: name, Version: version, Build: "0"}}
}

func prefixRecord(name, version string) *types.PrefixRecord {
	return &types.PrefixRecord{RepoDataRecord: *repo(name, version), Files: []string{"a", "b"}}
}

func sampleTransaction() *transaction.Transaction {
	return &transaction.Transaction{Operations: []transaction.Operation{
		{Install: repo("numpy", "2.0")},
		{Remove: prefixRecord("six", "1.16")},
		{Remove: prefixRecord("zlib", "1.2"), Install: repo("zlib", "1.3")},
	}}
}

func TestTerminalReporterPlainLines(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalReporter(&buf, FormatText)
	tx := sampleTransaction()

	r.OnTransactionStart(tx)
	u := r.OnUnlinkStart(1, tx.Operations[1].Remove)
	r.OnUnlinkComplete(u)
	cu := r.OnUnlinkStart(2, tx.Operations[2].Remove)
	r.OnUnlinkComplete(cu)
	l := r.OnLinkStart(0, tx.Operations[0].Install)
	r.OnLinkComplete(l)
	cl := r.OnLinkStart(2, tx.Operations[2].Install)
	r.OnLinkComplete(cl)
	r.OnTransactionComplete()

	assert.Equal(t, "- six 1.16\n+ numpy 2.0\n~ zlib 1.3\n", buf.String())
}

func TestPrinterTransactionText(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatText)
	require.NoError(t, p.Transaction(sampleTransaction()))
	assert.Equal(t, "+ numpy 2.0\n- six 1.16\n~ zlib 1.2 -> 1.3\n", buf.String())

	buf.Reset()
	require.NoError(t, p.Transaction(&transaction.Transaction{}))
	assert.Equal(t, "Nothing to do.\n", buf.String())
}

func TestPrinterTransactionJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatJSON).Transaction(sampleTransaction()))

	var decoded struct {
		Operations []operationJSON `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Operations, 3)
	assert.Equal(t, operationJSON{Name: "zlib", Remove: "1.2", Install: "1.3"}, decoded.Operations[2])
}

func TestPrinterOutcome(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatText)
	err := p.Outcome(
		map[string]clobber.ClobberedPath{"bin/tool": {Package: "b", OtherPackages: []string{"a"}}},
		&linkscript.Result{Messages: map[string]string{"b": "hello\n"}, FailedPackages: []string{"c"}},
		nil,
	)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "bin/tool is provided by b (also in a)")
	assert.Contains(t, out, "b:\nhello\n")
	assert.Contains(t, out, "link script of c failed")
}

func TestPrinterRecords(t *testing.T) {
	records := []types.PrefixRecord{*prefixRecord("numpy", "2.0"), *prefixRecord("zlib", "1.3")}

	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatText).Records(records, false))
	assert.Equal(t, "numpy 2.0 0\nzlib 1.3 0\n", buf.String())

	buf.Reset()
	require.NoError(t, NewPrinter(&buf, FormatText).Records(records, true))
	assert.Equal(t, MarkdownTable(records), buf.String())
	assert.Contains(t, buf.String(), "| zlib | 1.3 | 0 |  |")

	buf.Reset()
	require.NoError(t, NewPrinter(&buf, FormatJSON).Records(records, false))
	var decoded []recordJSON
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, recordJSON{Name: "numpy", Version: "2.0", Build: "0", Files: 2}, decoded[0])
}

func TestPrinterRecordsShowsClobberedCopies(t *testing.T) {
	loser := prefixRecord("first", "1.0")
	loser.Files = []string{"bin/tool__clobber-from-first", "share/first.txt"}
	records := []types.PrefixRecord{*loser, *prefixRecord("second", "1.0")}

	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatText).Records(records, false))
	assert.Equal(t, "first 1.0 0 (1 clobbered)\nsecond 1.0 0\n", buf.String())

	buf.Reset()
	require.NoError(t, NewPrinter(&buf, FormatJSON).Records(records, false))
	var decoded []recordJSON
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, []string{"bin/tool"}, decoded[0].Clobbered)
	assert.Nil(t, decoded[1].Clobbered)
}
