package p2p

import (
	"context"
	"encoding/json"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/hyuksoo-dev/bazaar/pkg/market"
)

// Publisher gossips ledger notifications on a pubsub topic so external
// indexers can consume the append-only event log without polling the API.
type Publisher struct {
	h     host.Host
	ps    *pubsub.PubSub
	topic *pubsub.Topic
	log   *zap.SugaredLogger

	// Events queue between the market lock and the gossip publish.
	eventCh chan market.Event
}

type Config struct {
	ListenAddr string   // Multiaddr, e.g. /ip4/0.0.0.0/tcp/9000
	Bootstrap  []string // Multiaddrs of peers to connect on startup
	Topic      string   // Pubsub topic for ledger events
	Logger     *zap.SugaredLogger
}

// NewPublisher starts a libp2p host, joins the event topic, and begins the
// publish loop. Wire it to a market with market.SubscribeEvents(p.Enqueue).
func NewPublisher(ctx context.Context, cfg Config) (*Publisher, error) {
	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, err
	}

	topic, err := ps.Join(cfg.Topic)
	if err != nil {
		return nil, err
	}

	p := &Publisher{
		h:       h,
		ps:      ps,
		topic:   topic,
		log:     cfg.Logger,
		eventCh: make(chan market.Event, 256),
	}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil && cfg.Logger != nil {
			cfg.Logger.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	go p.run(ctx)

	if cfg.Logger != nil {
		cfg.Logger.Infow("p2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr, "topic", cfg.Topic)
	}
	return p, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

// Enqueue hands an event to the publish loop. Non-blocking: called under
// the market lock, so a full queue drops the gossip copy rather than stall
// the ledger (indexers can backfill from the persisted log).
func (p *Publisher) Enqueue(ev market.Event) {
	select {
	case p.eventCh <- ev:
	default:
		if p.log != nil {
			p.log.Warnw("event_gossip_dropped", "seq", ev.Seq, "type", ev.Type)
		}
	}
}

func (p *Publisher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.eventCh:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := p.topic.Publish(ctx, data); err != nil && p.log != nil {
				p.log.Warnw("event_publish_failed", "seq", ev.Seq, "err", err)
			}
		}
	}
}

// Subscribe consumes the event topic, invoking fn for each decoded event.
// Used by relay/indexer nodes. Blocks until the context is canceled.
func (p *Publisher) Subscribe(ctx context.Context, fn func(market.Event)) error {
	sub, err := p.topic.Subscribe()
	if err != nil {
		return err
	}
	defer sub.Cancel()

	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		// Skip our own gossip; the local node already saw the event.
		if msg.ReceivedFrom == p.h.ID() {
			continue
		}
		var ev market.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			continue
		}
		fn(ev)
	}
}

// Close shuts down the libp2p host.
func (p *Publisher) Close() error {
	return p.h.Close()
}
