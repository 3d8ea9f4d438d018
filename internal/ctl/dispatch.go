package ctl

import (
	"github.com/apkaspell/bdb/internal/bloom"
	"github.com/apkaspell/bdb/internal/protocol"
)

// DispatchRead executes a read-classified command against c and records its
// result into resp. Resolution failures (missing database or filter) flip
// resp to Error rather than returning a Go error: a dispatch error is
// reserved for I/O failures that abort the whole connection.
func DispatchRead(c *Ctl, cmd protocol.Cmd, resp *protocol.Response) error {
	switch cmd.Kind {
	case protocol.KindCtlWriteData:
		return c.WriteToStorage()
	case protocol.KindBloomFilterHas:
		bfs, ok := lookupFilter(c, cmd.DBID, cmd.BFID)
		if !ok {
			resp.Fail()
			return nil
		}
		return appendHasResult(resp, bfs.Inner, cmd.Elt)
	case protocol.KindBloomFilterHasBatch:
		bfs, ok := lookupFilter(c, cmd.DBID, cmd.BFID)
		if !ok {
			resp.Fail()
			return nil
		}
		return appendHasBatchResults(resp, bfs.Inner, cmd.Elts)
	default:
		resp.Fail()
		return nil
	}
}

// DispatchWrite executes a write-classified command against c and records
// its result into resp.
func DispatchWrite(c *Ctl, cmd protocol.Cmd, resp *protocol.Response) error {
	switch cmd.Kind {
	case protocol.KindCtlWalReplay:
		return c.ReplayLoggingData()
	case protocol.KindCtlLoadData:
		return c.LoadFromStorage()
	case protocol.KindDatabaseNewBloomFilter:
		return dispatchNewBloomFilter(c, cmd, resp)
	case protocol.KindBloomFilterAdd:
		bfs, ok := lookupFilter(c, cmd.DBID, cmd.BFID)
		if !ok {
			resp.Fail()
			return nil
		}
		return bfs.Inner.Add(cmd.Elt)
	case protocol.KindBloomFilterAddBatch:
		bfs, ok := lookupFilter(c, cmd.DBID, cmd.BFID)
		if !ok {
			resp.Fail()
			return nil
		}
		return addBatch(resp, bfs.Inner, cmd.Elts)
	default:
		resp.Fail()
		return nil
	}
}

func dispatchNewBloomFilter(c *Ctl, cmd protocol.Cmd, resp *protocol.Response) error {
	db, ok := c.DBRegistry.Get([]byte{cmd.DBID})
	if !ok {
		resp.Fail()
		return nil
	}
	if _, exists := db.BFRegistry.Get([]byte{cmd.BFID}); exists {
		resp.Fail()
		return nil
	}
	return db.BFRegistry.Add(bloom.NewStructureDefault(cmd.BFID, db.ID), []byte{cmd.BFID})
}

func lookupFilter(c *Ctl, dbID, bfID uint8) (*bloom.Structure, bool) {
	db, ok := c.DBRegistry.Get([]byte{dbID})
	if !ok {
		return nil, false
	}
	bfs, ok := db.BFRegistry.Get([]byte{bfID})
	if !ok {
		return nil, false
	}
	return bfs, true
}

func appendHasResult(resp *protocol.Response, f *bloom.Filter, elt []byte) error {
	has, err := f.Has(elt)
	if err != nil {
		return err
	}
	resp.Append(hasToken(has))
	return nil
}

// appendHasBatchResults walks elts as concatenated LV-encoded elements,
// appending one result token per element in input order. A malformed LV
// mid-stream flips the response to Error but leaves the tokens already
// appended in place.
func appendHasBatchResults(resp *protocol.Response, f *bloom.Filter, elts []byte) error {
	var firstErr error
	ok := protocol.EachElement(elts, func(elt []byte) {
		if firstErr != nil {
			return
		}
		has, err := f.Has(elt)
		if err != nil {
			firstErr = err
			return
		}
		resp.Append(hasToken(has))
	})
	if firstErr != nil {
		return firstErr
	}
	if !ok {
		resp.Fail()
	}
	return nil
}

// addBatch walks elts as concatenated LV-encoded elements, adding each to f
// in order. A malformed LV mid-stream flips the response to Error but
// leaves elements already added in place.
func addBatch(resp *protocol.Response, f *bloom.Filter, elts []byte) error {
	var firstErr error
	ok := protocol.EachElement(elts, func(elt []byte) {
		if firstErr != nil {
			return
		}
		if err := f.Add(elt); err != nil {
			firstErr = err
		}
	})
	if firstErr != nil {
		return firstErr
	}
	if !ok {
		resp.Fail()
	}
	return nil
}

func hasToken(has bool) byte {
	if has {
		return protocol.TokenTrue
	}
	return protocol.TokenFalse
}
