package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(ProxyCacheHits)
	misses := testutil.ToFloat64(ProxyCacheMisses)

	RecordCacheLookup(true)
	RecordCacheLookup(false)
	RecordCacheLookup(false)

	require.Equal(t, hits+1, testutil.ToFloat64(ProxyCacheHits))
	require.Equal(t, misses+2, testutil.ToFloat64(ProxyCacheMisses))
}

func TestRecordRefresh(t *testing.T) {
	before := testutil.ToFloat64(CredentialRefreshes.WithLabelValues("deleted"))
	RecordRefresh("deleted")
	require.Equal(t, before+1, testutil.ToFloat64(CredentialRefreshes.WithLabelValues("deleted")))
}

func TestRecordUpstream(t *testing.T) {
	RecordUpstream("char/WalletJournal", 20*time.Millisecond, nil)
	RecordUpstream("char/WalletJournal", 20*time.Millisecond, errors.New("boom"))
	require.Equal(t, 2, testutil.CollectAndCount(UpstreamRequestDuration))
}
