package minirel

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RichardKnop/minirel/internal/buffer"
	"github.com/RichardKnop/minirel/internal/heap"
	"github.com/RichardKnop/minirel/internal/pkg/logging"
	"github.com/RichardKnop/minirel/internal/record"
	"github.com/RichardKnop/minirel/internal/storage"
)

const testBlockSize = 512

var testLogger *zap.Logger

func init() {
	logConf := logging.DefaultConfig()

	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}

	l, err := logging.ParseLevel(level)
	if err != nil {
		panic(err)
	}
	logConf.Level = zap.NewAtomicLevelAt(l)

	testLogger, err = logConf.Build()
	if err != nil {
		panic(err)
	}
}

var (
	usersDescriptor = record.NewDescriptor(
		record.NewField("id", record.Int, 0),
		record.NewField("name", record.Varchar, 20),
		record.NewField("score", record.Float, 0),
		record.NewField("active", record.Boolean, 0),
	)
	ordersDescriptor = record.NewDescriptor(
		record.NewField("order_id", record.Int, 0),
		record.NewField("user_id", record.Int, 0),
		record.NewField("amount", record.Float, 0),
	)
	usersRows = []record.Record{
		{int64(1), "alice", float64(90.5), true},
		{int64(2), "bob", float64(70), false},
		{int64(3), "carol", float64(85), true},
		{int64(4), "bob", float64(60), true},
	}
	ordersRows = []record.Record{
		{int64(10), int64(1), float64(20)},
		{int64(11), int64(1), float64(5)},
		{int64(12), int64(2), float64(7.5)},
		{int64(13), int64(3), float64(12)},
	}
)

func newTestCatalog(t *testing.T) *heap.Catalog {
	t.Helper()
	buf, err := buffer.New(testLogger, storage.NewMemStore(testBlockSize), buffer.Options{
		PersistentBlocks: 16,
		CacheBlocks:      16,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = buf.Shutdown(context.Background()) })
	return heap.New(testLogger, buf)
}

func createTestTable(t *testing.T, c *heap.Catalog, name string, desc record.Descriptor, rows []record.Record) storage.FileID {
	t.Helper()
	ctx := context.Background()
	fileID, err := c.CreateHeapFile(ctx, name, desc, false)
	require.NoError(t, err)
	for _, values := range rows {
		data, err := record.Encode(values, desc)
		require.NoError(t, err)
		_, err = c.InsertRecord(ctx, fileID, data)
		require.NoError(t, err)
	}
	return fileID
}

func readTestTable(t *testing.T, c *heap.Catalog, fileID storage.FileID) (record.Descriptor, []record.Record) {
	t.Helper()
	ctx := context.Background()
	desc, err := c.GetRecordDescriptor(ctx, fileID)
	require.NoError(t, err)
	var rows []record.Record
	err = c.Scan(ctx, fileID, func(_ heap.RecordID, data []byte) error {
		values, err := record.Decode(data, desc)
		if err != nil {
			return err
		}
		rows = append(rows, values)
		return nil
	})
	require.NoError(t, err)
	return desc, rows
}

func fileNames(t *testing.T, c *heap.Catalog) []string {
	t.Helper()
	infos, err := c.Buffer().Store().ListFiles(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return names
}

func attr(table, name string) AttributeRef {
	return AttributeRef{Table: table, Name: name}
}

func resetMock(aMock *mock.Mock) {
	aMock.ExpectedCalls = nil
	aMock.Calls = nil
}
