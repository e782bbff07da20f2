// internal/blocktx/engine_test.go
package blocktx

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/tamzrod/tdma-mesh/internal/command"
)

func newEngine(self uint8) *Engine {
	return New(Config{Self: self, ChunkSize: 10, MaxPackets: 5, FrameLength: 1.0})
}

func TestAdmitTooLarge(t *testing.T) {
	e := newEngine(1)

	_, err := e.Admit(2, make([]byte, 51), 1, 100, 2)
	if !errors.Is(err, ErrBlockTooLarge) {
		t.Fatalf("err = %v, want ErrBlockTooLarge", err)
	}
	if e.Busy() {
		t.Fatalf("rejected admission left state behind")
	}
}

func TestAdmitRequestPayload(t *testing.T) {
	e := newEngine(1)

	req, err := e.Admit(2, make([]byte, 45), 7, 100.2, 2)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if req.Length != 5 || req.DestID != 2 || req.StartTime != 103 {
		t.Fatalf("request = %+v, want length 5 dest 2 start 103", req)
	}

	if _, err := e.Admit(3, []byte{1}, 8, 100.2, 2); !errors.Is(err, ErrBusy) {
		t.Fatalf("second admit err = %v, want ErrBusy", err)
	}
	if _, err := newEngine(1).Admit(3, nil, 8, 0, 0); !errors.Is(err, ErrEmptyBlock) {
		t.Fatalf("empty admit err = %v, want ErrEmptyBlock", err)
	}
}

func TestSenderChunksAndCompletes(t *testing.T) {
	e := newEngine(1)
	data := []byte("0123456789abcdefghijKLMNO") // 25 bytes -> 3 chunks

	if _, err := e.Admit(2, data, 7, 0, 1); err != nil {
		t.Fatal(err)
	}
	req, _ := e.Pending()
	if !e.Start(req) {
		t.Fatalf("start failed")
	}

	if e.Role(0.5) != RoleNone {
		t.Fatalf("role before start time should be none")
	}
	if e.Role(1.0) != RoleSender {
		t.Fatalf("role = %v, want sender", e.Role(1.0))
	}

	var got []byte
	for i := 1; ; i++ {
		p, ok := e.NextChunk()
		if !ok {
			break
		}
		if int(p.Seq) != i || p.ReqCounter != 7 {
			t.Fatalf("chunk %d has seq %d counter %d", i, p.Seq, p.ReqCounter)
		}
		got = append(got, p.Data...)
	}

	if !bytes.Equal(got, data) {
		t.Fatalf("chunks = %q, want %q", got, data)
	}
	if !e.Session().Complete || len(e.Session().Sent) != 3 {
		t.Fatalf("sender session not complete after 3 chunks")
	}
}

func TestReceiverReassemblesAnyOrder(t *testing.T) {
	data := bytes.Repeat([]byte("block-transfer-"), 3) // 45 bytes -> 5 chunks

	sender := newEngine(1)
	if _, err := sender.Admit(2, data, 9, 0, 0); err != nil {
		t.Fatal(err)
	}
	req, _ := sender.Pending()
	sender.Start(req)

	var chunks []command.BlockDataPayload
	for {
		p, ok := sender.NextChunk()
		if !ok {
			break
		}
		chunks = append(chunks, p)
	}

	rnd := rand.New(rand.NewSource(42))
	for trial := 0; trial < 10; trial++ {
		rx := newEngine(2)
		if !rx.Start(req) {
			t.Fatalf("receiver start failed")
		}
		if rx.Role(0) != RoleReceiver {
			t.Fatalf("role = %v, want receiver", rx.Role(0))
		}

		order := rnd.Perm(len(chunks))
		for i, idx := range order {
			done := rx.Receive(chunks[idx])
			last := i == len(order)-1

			if !last {
				if done || rx.Session().Complete {
					t.Fatalf("complete after %d of %d chunks", i+1, len(chunks))
				}
				if _, ok := rx.Session().Assemble(); ok {
					t.Fatalf("assembled with chunks missing")
				}
			} else if !done {
				t.Fatalf("final chunk did not complete session")
			}
		}

		got, ok := rx.Session().Assemble()
		if !ok || !bytes.Equal(got, data) {
			t.Fatalf("trial %d: reassembled %q, want %q", trial, got, data)
		}
	}
}

func TestDuplicateChunkOverwrites(t *testing.T) {
	rx := newEngine(2)
	rx.Start(Request{Source: 1, Counter: 3, Dest: 2, Length: 2})

	rx.Receive(command.BlockDataPayload{ReqCounter: 3, Seq: 1, Data: []byte("old")})
	rx.Receive(command.BlockDataPayload{ReqCounter: 3, Seq: 1, Data: []byte("new")})
	if rx.Session().Complete {
		t.Fatalf("duplicate counted as a new chunk")
	}
	rx.Receive(command.BlockDataPayload{ReqCounter: 3, Seq: 2, Data: []byte("!")})

	got, ok := rx.Session().Assemble()
	if !ok || string(got) != "new!" {
		t.Fatalf("assembled %q ok=%v, want new!", got, ok)
	}
}

func TestBystanderRole(t *testing.T) {
	e := newEngine(3)
	e.Start(Request{Source: 1, Counter: 3, Dest: 2, Length: 2})
	if e.Role(0) != RoleBystander {
		t.Fatalf("role = %v, want bystander", e.Role(0))
	}
	if e.Receive(command.BlockDataPayload{ReqCounter: 3, Seq: 1}) {
		t.Fatalf("bystander stored a chunk")
	}

	b := newEngine(3)
	b.Start(Request{Source: 1, Counter: 4, Dest: 0, Length: 1})
	if b.Role(0) != RoleReceiver {
		t.Fatalf("broadcast transfer role = %v, want receiver", b.Role(0))
	}
}

func TestExpireUnconfirmedRequest(t *testing.T) {
	e := newEngine(1)
	if _, err := e.Admit(2, []byte{1, 2, 3}, 5, 10, 2); err != nil {
		t.Fatal(err)
	}

	if req, _ := e.Expire(11); req != nil {
		t.Fatalf("expired before start time")
	}
	req, _ := e.Expire(12.5)
	if req == nil || req.Counter != 5 {
		t.Fatalf("pending request not expired: %v", req)
	}
	if e.Busy() {
		t.Fatalf("engine still busy after expiry")
	}
}

func TestExpireIncompleteSessionKeepsPartial(t *testing.T) {
	rx := newEngine(2)
	rx.Start(Request{Source: 1, Counter: 3, Dest: 2, StartTime: 100, Length: 3})
	rx.Receive(command.BlockDataPayload{ReqCounter: 3, Seq: 2, Data: []byte("mid")})

	if _, s := rx.Expire(102); s != nil {
		t.Fatalf("expired within declared length")
	}
	_, s := rx.Expire(103.5)
	if s == nil {
		t.Fatalf("session not expired after declared length")
	}
	if rx.Session() != nil || rx.Busy() {
		t.Fatalf("session still active after expiry")
	}

	last := rx.Last()
	if last.Complete || string(last.Packets[2]) != "mid" {
		t.Fatalf("partial data not retained: %+v", last)
	}
}

func TestCancelAndEnd(t *testing.T) {
	tx := newEngine(1)
	tx.Admit(2, []byte("abc"), 11, 0, 0)
	req, _ := tx.Pending()
	tx.Start(req)

	end, ok := tx.Cancel()
	if !ok || end.ReqSource != 1 || end.ReqCounter != 11 {
		t.Fatalf("cancel = %+v %v", end, ok)
	}
	if tx.Busy() {
		t.Fatalf("sender busy after cancel")
	}

	rx := newEngine(2)
	rx.Start(req)
	if rx.End(1, 12) != nil {
		t.Fatalf("end with wrong counter accepted")
	}
	if rx.End(1, 11) == nil || rx.Busy() {
		t.Fatalf("end did not tear down session")
	}
}

func TestRejectedClearsPending(t *testing.T) {
	e := newEngine(1)
	e.Admit(2, []byte("abc"), 4, 0, 1)

	if e.Rejected(5) {
		t.Fatalf("rejected wrong counter")
	}
	if !e.Rejected(4) || e.Busy() {
		t.Fatalf("rejection did not clear pending request")
	}
}

func TestExpireCompleteSessionWithoutEnd(t *testing.T) {
	rx := newEngine(2)
	rx.Start(Request{Source: 1, Counter: 4, Dest: 2, StartTime: 100, Length: 2})
	rx.Receive(command.BlockDataPayload{ReqCounter: 4, Seq: 1, Data: []byte("a")})
	if !rx.Receive(command.BlockDataPayload{ReqCounter: 4, Seq: 2, Data: []byte("b")}) {
		t.Fatalf("second chunk did not complete the session")
	}

	// the sender's BlockTxEnd never arrives
	_, s := rx.Expire(102.5)
	if s == nil || !s.Complete {
		t.Fatalf("complete session not closed after declared length: %+v", s)
	}
	if rx.Busy() {
		t.Fatalf("engine still busy")
	}
}
