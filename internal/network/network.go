// Package network bridges typed blockchain messages to/from the wire:
// JSON envelopes published on named topics over a small flood-fill
// pub-sub layer built directly on libp2p streams (§4.6, §6 C12).
// Grounded on the teacher's internal/p2p/message.go typed-envelope shape
// and internal/p2p/manager.go peer/channel bridging, with the gob wire
// format swapped for the spec's JSON-over-named-topics requirement and
// the teacher's raw TCP server swapped for github.com/libp2p/go-libp2p
// (a direct teacher dependency; no pubsub package appears anywhere in
// the pack, so this hand-rolled flood layer is the ambient-stack
// justification for building on raw libp2p streams rather than
// go-libp2p-pubsub, which is absent from the corpus).
package network

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"go.uber.org/zap"

	"github.com/empower1/chainnode/internal/chaintypes"
	"github.com/empower1/chainnode/internal/ledger"
)

// Topic names, per §6.
const (
	TopicBlocks       = "blockchain-blocks"
	TopicTransactions = "blockchain-transactions"
)

func protocolID(topic string) protocol.ID {
	return protocol.ID(fmt.Sprintf("/chainnode/%s/1.0.0", topic))
}

// Vote is an attestation's accept/reject decision.
type Vote struct {
	Accept bool
	Reason string // populated only when !Accept
}

// Kind tags which variant a BlockchainMessage/NetworkMessage carries.
type Kind string

const (
	KindNewBlock        Kind = "NewBlock"
	KindNewTransaction  Kind = "NewTransaction"
	KindAttestation     Kind = "Attestation"
)

// Envelope is the JSON wire format for every message published on a
// topic: a tagged union discriminated by Kind (§6).
type Envelope struct {
	Kind        Kind                  `json:"kind"`
	Block       *ledger.Block         `json:"block,omitempty"`
	Proposer    *chaintypes.Address   `json:"proposer,omitempty"`
	Signature   *[65]byte             `json:"signature,omitempty"`
	Transaction *ledger.Transaction   `json:"transaction,omitempty"`
	BlockHash   *chaintypes.Hash      `json:"block_hash,omitempty"`
	Vote        *Vote                 `json:"vote,omitempty"`
	ValidatorID *chaintypes.Address   `json:"validator_id,omitempty"`
}

// Inbound is the normalized form handed to the orchestrator for every
// message received from a peer, regardless of topic.
type Inbound struct {
	Kind        Kind
	Block       *ledger.Block
	Proposer    chaintypes.Address
	Signature   [65]byte
	Transaction *ledger.Transaction
	BlockHash   chaintypes.Hash
	Vote        Vote
	ValidatorID chaintypes.Address
}

// ErrUnrecognizedPayload is returned (and logged, never propagated) when
// an inbound stream carries a payload this node does not understand.
var ErrUnrecognizedPayload = errors.New("network: unrecognized message payload")

// Adapter is the flood-fill pub-sub layer: every peer forwards every
// message it receives on a topic to every other peer it holds a stream
// with, once. Grounded on the teacher's NetworkManager peer map, rebuilt
// over libp2p host connections instead of raw net.Conn.
type Adapter struct {
	host   host.Host
	logger *zap.SugaredLogger

	mu    sync.Mutex
	peers map[peer.ID]struct{}

	seenMu sync.Mutex
	seen   map[string]struct{}

	Inbound chan Inbound
}

// NewAdapter builds a libp2p host listening on listenPort and registers
// stream handlers for both topics.
func NewAdapter(ctx context.Context, listenPort int, logger *zap.SugaredLogger) (*Adapter, error) {
	h, err := libp2p.New(
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", listenPort)),
	)
	if err != nil {
		return nil, fmt.Errorf("network: failed to construct libp2p host: %w", err)
	}

	a := &Adapter{
		host:    h,
		logger:  logger,
		peers:   make(map[peer.ID]struct{}),
		seen:    make(map[string]struct{}),
		Inbound: make(chan Inbound, 256),
	}

	h.SetStreamHandler(protocolID(TopicBlocks), a.handleStream(TopicBlocks))
	h.SetStreamHandler(protocolID(TopicTransactions), a.handleStream(TopicTransactions))

	if logger != nil {
		logger.Infow("network adapter listening", "peer_id", h.ID().String(), "port", listenPort)
	}
	return a, nil
}

// Connect dials a peer and registers it for future flooding.
func (a *Adapter) Connect(ctx context.Context, addrInfo peer.AddrInfo) error {
	if err := a.host.Connect(ctx, addrInfo); err != nil {
		return fmt.Errorf("network: failed to connect to peer %s: %w", addrInfo.ID, err)
	}
	a.mu.Lock()
	a.peers[addrInfo.ID] = struct{}{}
	a.mu.Unlock()
	return nil
}

func (a *Adapter) handleStream(topic string) network.StreamHandler {
	return func(s network.Stream) {
		defer s.Close()
		reader := bufio.NewReader(s)
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if a.logger != nil {
				a.logger.Warnw("failed to read stream payload", "topic", topic, "error", err)
			}
			return
		}
		a.ingest(topic, line, s.Conn().RemotePeer())
	}
}

func (a *Adapter) ingest(topic string, raw []byte, from peer.ID) {
	digest := string(raw)
	a.seenMu.Lock()
	if _, dup := a.seen[digest]; dup {
		a.seenMu.Unlock()
		return
	}
	a.seen[digest] = struct{}{}
	a.seenMu.Unlock()

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if a.logger != nil {
			a.logger.Warnw("dropping unrecognized payload", "topic", topic, "error", err)
		}
		return
	}

	inbound, err := env.toInbound()
	if err != nil {
		if a.logger != nil {
			a.logger.Warnw("dropping malformed envelope", "topic", topic, "error", err)
		}
		return
	}

	a.Inbound <- inbound
	a.floodExcept(topic, raw, from)
}

func (env Envelope) toInbound() (Inbound, error) {
	switch env.Kind {
	case KindNewBlock:
		if env.Block == nil || env.Proposer == nil || env.Signature == nil {
			return Inbound{}, ErrUnrecognizedPayload
		}
		return Inbound{Kind: env.Kind, Block: env.Block, Proposer: *env.Proposer, Signature: *env.Signature}, nil
	case KindNewTransaction:
		if env.Transaction == nil {
			return Inbound{}, ErrUnrecognizedPayload
		}
		return Inbound{Kind: env.Kind, Transaction: env.Transaction}, nil
	case KindAttestation:
		if env.BlockHash == nil || env.Vote == nil || env.ValidatorID == nil || env.Signature == nil {
			return Inbound{}, ErrUnrecognizedPayload
		}
		return Inbound{Kind: env.Kind, BlockHash: *env.BlockHash, Vote: *env.Vote, ValidatorID: *env.ValidatorID, Signature: *env.Signature}, nil
	default:
		return Inbound{}, ErrUnrecognizedPayload
	}
}

// floodExcept forwards raw to every known peer except the one it arrived
// from, each over a fresh stream on the same topic's protocol.
func (a *Adapter) floodExcept(topic string, raw []byte, except peer.ID) {
	a.mu.Lock()
	targets := make([]peer.ID, 0, len(a.peers))
	for p := range a.peers {
		if p != except {
			targets = append(targets, p)
		}
	}
	a.mu.Unlock()

	for _, p := range targets {
		a.sendTo(p, topic, raw)
	}
}

func (a *Adapter) sendTo(p peer.ID, topic string, raw []byte) {
	s, err := a.host.NewStream(context.Background(), p, protocolID(topic))
	if err != nil {
		if a.logger != nil {
			a.logger.Warnw("failed to open stream to peer", "peer", p.String(), "topic", topic, "error", err)
		}
		return
	}
	defer s.Close()
	if _, err := s.Write(append(raw, '\n')); err != nil && a.logger != nil {
		a.logger.Warnw("failed to write to peer stream", "peer", p.String(), "error", err)
	}
}

// PublishBlock marshals a NewBlock envelope and floods it on the blocks
// topic.
func (a *Adapter) PublishBlock(block *ledger.Block, proposer chaintypes.Address, sig [65]byte) error {
	env := Envelope{Kind: KindNewBlock, Block: block, Proposer: &proposer, Signature: &sig}
	return a.publish(TopicBlocks, env)
}

// PublishTransaction marshals a NewTransaction envelope and floods it on
// the transactions topic.
func (a *Adapter) PublishTransaction(tx *ledger.Transaction) error {
	env := Envelope{Kind: KindNewTransaction, Transaction: tx}
	return a.publish(TopicTransactions, env)
}

// PublishAttestation marshals an Attestation envelope and floods it on
// the blocks topic (attestations travel alongside blocks per §6). sig is
// the validator's signature over keccak256 of the attestation message
// (§4.6), carried so peers can verify recover(sig) == validatorID.
func (a *Adapter) PublishAttestation(blockHash chaintypes.Hash, vote Vote, validatorID chaintypes.Address, sig [65]byte) error {
	env := Envelope{Kind: KindAttestation, BlockHash: &blockHash, Vote: &vote, ValidatorID: &validatorID, Signature: &sig}
	return a.publish(TopicBlocks, env)
}

func (a *Adapter) publish(topic string, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("network: failed to marshal envelope: %w", err)
	}

	digest := string(raw)
	a.seenMu.Lock()
	a.seen[digest] = struct{}{}
	a.seenMu.Unlock()

	a.floodExcept(topic, raw, "")
	return nil
}

// Close shuts down the underlying libp2p host.
func (a *Adapter) Close() error {
	return a.host.Close()
}
