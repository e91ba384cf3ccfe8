package staging

import (
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/testutil"
)

func TestUUIDv7(t *testing.T) {
	id, err := UUIDv7{}.NewID()
	require.NoError(t, err)
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestBeginCreatesStagingDir(t *testing.T) {
	p := testutil.NewPack(t)
	txn, err := Begin(p.Root, nil, testutil.NewFixedClock(testutil.DefaultEpoch))
	require.NoError(t, err)

	assert.True(t, p.Exists(txn.Dir()+"/staging"))
	assert.Equal(t, "enrich/txns/"+txn.ID, txn.Dir())
	assert.Equal(t, int64(1_700_000_000_000), txn.StartedAtEpochMs)
}

func TestBeginRejectsUnsafeIDs(t *testing.T) {
	p := testutil.NewPack(t)
	_, err := Begin(p.Root, badIDs{"../x"}, nil)
	assert.Error(t, err)
	_, err = Begin(p.Root, badIDs{"a/b"}, nil)
	assert.Error(t, err)
}

type badIDs struct{ id string }

func (b badIDs) NewID() (string, error) { return b.id, nil }

func TestWriteRejectsEscapingPaths(t *testing.T) {
	p := testutil.NewPack(t)
	txn, err := Begin(p.Root, testutil.NewSequenceIDs(""), nil)
	require.NoError(t, err)

	var pe *docpack.PathError
	require.ErrorAs(t, txn.WriteBytes("../outside", []byte("x")), &pe)
	require.ErrorAs(t, txn.WriteBytes("/etc/passwd", []byte("x")), &pe)
}

func TestPublishReplacesAndCreates(t *testing.T) {
	p := testutil.NewPack(t).File("man/ls.1", "old page\n")
	txn, err := Begin(p.Root, testutil.NewSequenceIDs(""), nil)
	require.NoError(t, err)

	require.NoError(t, txn.WriteBytes("man/ls.1", []byte("new page\n")))
	require.NoError(t, txn.WriteJSON("inventory/surface.json", map[string]int{"schema_version": 1}))

	staged, err := txn.Staged()
	require.NoError(t, err)
	assert.Equal(t, []string{"inventory/surface.json", "man/ls.1"}, staged)

	published, err := txn.Publish()
	require.NoError(t, err)
	assert.Equal(t, staged, published)
	assert.Equal(t, "new page\n", p.Read("man/ls.1"))
	assert.Equal(t, "{\n  \"schema_version\": 1\n}\n", p.Read("inventory/surface.json"))
	assert.Equal(t, "old page\n", p.Read(txn.Dir()+"/backup/man/ls.1"))
	assert.False(t, p.Exists("man/.ls.1.tmp"))

	require.NoError(t, txn.Cleanup())
	assert.False(t, p.Exists(txn.Dir()))
	assert.False(t, p.Exists(docpack.TxnsDir))
}

func TestPublishFailureRestoresPublishedFiles(t *testing.T) {
	p := testutil.NewPack(t).
		File("a/one.json", "old one\n").
		File("c/three.json", "old three\n")
	txn, err := Begin(p.Root, testutil.NewSequenceIDs(""), nil)
	require.NoError(t, err)

	require.NoError(t, txn.WriteBytes("a/one.json", []byte("new one\n")))
	require.NoError(t, txn.WriteBytes("b/two.json", []byte("new two\n")))
	require.NoError(t, txn.WriteBytes("c/three.json", []byte("new three\n")))

	txn.beforePublish = func(rel string) error {
		if rel == "c/three.json" {
			return errors.New("disk full")
		}
		return nil
	}
	_, err = txn.Publish()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.Equal(t, "old one\n", p.Read("a/one.json"))
	assert.False(t, p.Exists("b/two.json"))
	assert.Equal(t, "old three\n", p.Read("c/three.json"))
	assert.Equal(t, "new three\n", p.Read(txn.Dir()+"/staging/c/three.json"))
}

func TestPublishRefusesDirectoryDestination(t *testing.T) {
	p := testutil.NewPack(t)
	require.NoError(t, os.MkdirAll(p.Root.Path("man/ls.1"), 0o755))
	txn, err := Begin(p.Root, testutil.NewSequenceIDs(""), nil)
	require.NoError(t, err)
	require.NoError(t, txn.WriteBytes("man/ls.1", []byte("page")))

	_, err = txn.Publish()
	assert.ErrorContains(t, err, "destination is a directory")
}

func TestCleanupKeepsOtherTxns(t *testing.T) {
	p := testutil.NewPack(t)
	ids := testutil.NewSequenceIDs("")
	first, err := Begin(p.Root, ids, nil)
	require.NoError(t, err)
	second, err := Begin(p.Root, ids, nil)
	require.NoError(t, err)

	require.NoError(t, first.Cleanup())
	assert.True(t, p.Exists(second.Dir()))
	assert.True(t, p.Exists(docpack.TxnsDir))
}

func TestReadFilePrefersStagedCopy(t *testing.T) {
	p := testutil.NewPack(t).File("man/ls.1", "old page\n").File("man/meta.json", "{}\n")
	txn, err := Begin(p.Root, testutil.NewSequenceIDs(""), nil)
	require.NoError(t, err)
	require.NoError(t, txn.WriteBytes("man/ls.1", []byte("new page\n")))

	data, err := txn.ReadFile("man/ls.1")
	require.NoError(t, err)
	assert.Equal(t, "new page\n", string(data))

	data, err = txn.ReadFile("man/meta.json")
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))

	_, err = txn.ReadFile("man/missing.1")
	assert.True(t, docpack.IsNotExist(err))

	_, ok := txn.ModTime("man/ls.1")
	assert.True(t, ok)
	_, ok = txn.ModTime("man/missing.1")
	assert.False(t, ok)
	assert.Equal(t, "old page\n", p.Read("man/ls.1"), "reads never publish")
}
