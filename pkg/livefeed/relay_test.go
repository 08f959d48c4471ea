package livefeed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(p *Peer) []Message {
	var out []Message
	for {
		select {
		case m, ok := <-p.Messages():
			if !ok {
				return out
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestHeaderCacheOverwrites(t *testing.T) {
	var h HeaderCache

	_, ok := h.Get()
	assert.False(t, ok)

	src := []byte("first")
	h.Set(src)
	src[0] = 'F'
	got, ok := h.Get()
	require.True(t, ok)
	assert.Equal(t, "first", string(got))

	h.Set([]byte("second"))
	got, _ = h.Get()
	assert.Equal(t, "second", string(got))
}

func TestPacketsSuppressedUntilHeader(t *testing.T) {
	r := New(8, nil)
	host := r.Join()
	listener := r.Join()

	assert.False(t, r.Packet(host.ID(), []byte("early")))
	assert.Empty(t, drain(listener))

	r.SetHeader(host.ID(), []byte("hdr"))
	assert.True(t, r.Packet(host.ID(), []byte("pkt")))

	assert.Equal(t, []Message{
		{Kind: KindHeader, Data: []byte("hdr")},
		{Kind: KindPacket, Data: []byte("pkt")},
	}, drain(listener))

	// never echoed to the sender
	assert.Empty(t, drain(host))
}

func TestLateJoinerGetsHeaderFirst(t *testing.T) {
	r := New(8, nil)
	host := r.Join()
	r.SetHeader(host.ID(), []byte("hdr1"))
	r.SetHeader(host.ID(), []byte("hdr2"))
	r.Packet(host.ID(), []byte("before"))

	late := r.Join()
	r.Packet(host.ID(), []byte("after"))

	assert.Equal(t, []Message{
		{Kind: KindHeader, Data: []byte("hdr2")},
		{Kind: KindPacket, Data: []byte("after")},
	}, drain(late))
}

func TestEmptyHeaderKeepsFeedOpen(t *testing.T) {
	r := New(8, nil)
	host := r.Join()

	r.SetHeader(host.ID(), []byte("hdr"))
	r.SetHeader(host.ID(), []byte{})

	hdr, ok := r.Header()
	require.True(t, ok)
	assert.Empty(t, hdr)

	listener := r.Join()
	assert.True(t, r.Packet(host.ID(), []byte("pkt")))

	msgs := drain(listener)
	require.Len(t, msgs, 2)
	assert.Equal(t, KindHeader, msgs[0].Kind)
	assert.Empty(t, msgs[0].Data)
	assert.Equal(t, Message{Kind: KindPacket, Data: []byte("pkt")}, msgs[1])

	var empty HeaderCache
	empty.Set(nil)
	_, ok = empty.Get()
	assert.True(t, ok)
}

func TestSlowPeerDropped(t *testing.T) {
	r := New(1, nil)
	host := r.Join()
	slow := r.Join()

	r.SetHeader(host.ID(), []byte("hdr"))
	r.Packet(host.ID(), []byte("pkt"))

	assert.Equal(t, 1, r.Len())
	msgs := drain(slow)
	assert.Equal(t, []Message{{Kind: KindHeader, Data: []byte("hdr")}}, msgs)

	_, open := <-slow.Messages()
	assert.False(t, open)
}

func TestLeave(t *testing.T) {
	r := New(4, nil)
	p := r.Join()
	r.Leave(p.ID())
	r.Leave(p.ID())
	r.Leave("unknown")

	_, open := <-p.Messages()
	assert.False(t, open)
	assert.Equal(t, 0, r.Len())
}
