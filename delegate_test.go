package delegate_test

import (
	"context"
	"sync"
	"testing"

	"github.com/joeycumines/go-delegate"
	"github.com/joeycumines/go-delegate/internal/workload"
	"github.com/stretchr/testify/require"
)

var strategies = [...]delegate.ScanStrategy{delegate.ScanDirect, delegate.ScanPrefetchPaired}

func TestServer_singleClient(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			work := workload.New(100)
			srv, err := delegate.New(work, delegate.WithScanStrategy(strategy))
			require.NoError(t, err)

			client, err := srv.NewClient()
			require.NoError(t, err)
			for range 1000 {
				require.NoError(t, client.Perform())
			}
			require.Equal(t, uint64(1000), client.Completed())
			require.NoError(t, client.Close(context.Background()))
			require.NoError(t, srv.Close())

			require.Equal(t, 1000*workload.UnitResult(100), work.Sum())
		})
	}
}

func TestServer_twoClients(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			work := workload.New(10)
			srv, err := delegate.New(work, delegate.WithScanStrategy(strategy))
			require.NoError(t, err)

			var wg sync.WaitGroup
			counts := make([]uint64, 2)
			for i := range counts {
				wg.Add(1)
				go func() {
					defer wg.Done()
					client, err := srv.NewClient()
					if err != nil {
						t.Error(err)
						return
					}
					defer func() {
						if err := client.Close(context.Background()); err != nil {
							t.Error(err)
						}
					}()
					for range 500 {
						if err := client.Perform(); err != nil {
							t.Error(err)
							return
						}
					}
					counts[i] = client.Completed()
				}()
			}
			wg.Wait()
			require.NoError(t, srv.Close())

			require.Equal(t, []uint64{500, 500}, counts)
			require.Equal(t, 1000*workload.UnitResult(10), work.Sum())
		})
	}
}

func TestServer_rawSlot(t *testing.T) {
	work := workload.New(3)
	srv, err := delegate.New(work)
	require.NoError(t, err)
	defer srv.Close()

	slot := delegate.NewSlot()
	require.NoError(t, srv.Register(slot))
	for range 10 {
		tick, err := slot.Request(delegate.JobPerform)
		require.NoError(t, err)
		require.NoError(t, slot.Await(tick, delegate.SpinBackoff))
		require.Equal(t, tick, slot.ResponseTick())
	}
	require.NoError(t, srv.Unregister(context.Background(), slot))

	// re-registering a used slot doesn't replay its last job
	require.NoError(t, srv.Register(slot))
	require.NoError(t, slot.Do(delegate.JobPerform, delegate.SpinPure))
	require.NoError(t, srv.Unregister(context.Background(), slot))
	require.NoError(t, srv.Close())

	require.Equal(t, 11*workload.UnitResult(3), work.Sum())
}
