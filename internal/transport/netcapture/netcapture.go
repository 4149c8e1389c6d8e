//go:build netcapture
// +build netcapture

// Package netcapture implements the nvr.Transport contract over a raw
// packet capture, for cameras whose media arrives as a parseable UDP
// stream rather than through an opaque SDK. It requires libpcap and is
// only compiled with the "netcapture" build tag.
package netcapture

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/banshee-data/camnvr/internal/logging"
	"github.com/banshee-data/camnvr/internal/nvr"
)

// FrameDecoder turns a UDP payload into a decoded frame, or reports that
// the payload is only a partial frame fragment (more packets needed).
type FrameDecoder interface {
	// AddPacket feeds one UDP payload into the decoder's frame
	// accumulator. It returns a non-nil Frame once a full frame has been
	// assembled, and nil while more packets are still needed.
	AddPacket(payload []byte) (*nvr.Frame, error)
}

// Transport implements nvr.Transport by live-sniffing an interface (or
// replaying a pcap file, for tests) and decoding frames from the UDP
// stream on the configured port.
type Transport struct {
	handle  *pcap.Handle
	source  *gopacket.PacketSource
	decoder FrameDecoder
	fps     float64
	width   int
	height  int
	log     *logging.Logger

	frames chan *nvr.Frame
	errs   chan error
	done   chan struct{}
}

// Config configures a live or offline netcapture Transport.
type Config struct {
	// Iface is the network interface to sniff; ignored if PCAPFile is set.
	Iface string
	// PCAPFile replays a recorded capture instead of sniffing live traffic.
	PCAPFile string
	UDPPort  int
	Snaplen  int32

	Decoder FrameDecoder
	FPS     float64
	Width   int
	Height  int
}

// Open starts capturing (live or from a file, per cfg) and returns a
// Transport ready for Next calls.
func Open(cfg Config, log *logging.Logger) (*Transport, error) {
	var handle *pcap.Handle
	var err error

	if cfg.PCAPFile != "" {
		handle, err = pcap.OpenOffline(cfg.PCAPFile)
	} else {
		snaplen := cfg.Snaplen
		if snaplen == 0 {
			snaplen = 65536
		}
		handle, err = pcap.OpenLive(cfg.Iface, snaplen, true, pcap.BlockForever)
	}
	if err != nil {
		return nil, fmt.Errorf("netcapture: open: %w", err)
	}

	filter := fmt.Sprintf("udp port %d", cfg.UDPPort)
	if err := handle.SetBPFFilter(filter); err != nil {
		handle.Close()
		return nil, fmt.Errorf("netcapture: set BPF filter %q: %w", filter, err)
	}

	t := &Transport{
		handle:  handle,
		source:  gopacket.NewPacketSource(handle, handle.LinkType()),
		decoder: cfg.Decoder,
		fps:     cfg.FPS,
		width:   cfg.Width,
		height:  cfg.Height,
		log:     log,
		frames:  make(chan *nvr.Frame, 2),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	go t.pump()
	return t, nil
}

func (t *Transport) pump() {
	defer close(t.frames)
	for {
		select {
		case <-t.done:
			return
		case packet, ok := <-t.source.Packets():
			if !ok || packet == nil {
				t.trySendErr(nvr.ErrTransportClosed)
				return
			}
			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}
			frame, err := t.decoder.AddPacket(udp.Payload)
			if err != nil {
				t.log.Debugf("netcapture: decode error: %v", err)
				continue
			}
			if frame == nil {
				continue
			}
			frame.Timestamp = time.Now()
			select {
			case t.frames <- frame:
			case <-t.done:
				return
			}
		}
	}
}

func (t *Transport) trySendErr(err error) {
	select {
	case t.errs <- err:
	default:
	}
}

// Next blocks for the next decoded frame.
func (t *Transport) Next(ctx context.Context) (*nvr.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case f, ok := <-t.frames:
		if !ok {
			select {
			case err := <-t.errs:
				return nil, err
			default:
				return nil, nvr.ErrTransportClosed
			}
		}
		return f, nil
	}
}

// Release stops capture and closes the underlying pcap handle.
func (t *Transport) Release() {
	select {
	case <-t.done:
	default:
		close(t.done)
	}
	t.handle.Close()
}

// FPS reports the configured frame rate.
func (t *Transport) FPS() float64 { return t.fps }

// Resolution reports the configured frame dimensions.
func (t *Transport) Resolution() (int, int) { return t.width, t.height }
