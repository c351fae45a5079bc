// The sniffer command captures sternd's TCP traffic on a local interface
// and pretty-prints the decoded protocol messages. Useful for debugging
// clients without touching the server.
package main

import (
	"fmt"
	"math"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/spf13/pflag"

	"github.com/halma/sternd/internal/protocol"
)

var (
	device = pflag.StringP("device", "d", "lo", "Device on which to listen for packets")
	port   = pflag.IntP("port", "p", 4000, "Server TCP port to watch")
)

// flowBuffer accumulates one direction of a TCP conversation so frames
// split across segments can be reassembled.
type flowBuffer struct {
	data     []byte
	toServer bool
}

func main() {
	pflag.Parse()

	handle, err := pcap.OpenLive(*device, math.MaxInt32, false, pcap.BlockForever)
	if err != nil {
		exit("error opening handle: %v", err)
	}
	if err := handle.SetBPFFilter(fmt.Sprintf("tcp and port %d", *port)); err != nil {
		exit("error setting filter: %v", err)
	}

	fmt.Printf("watching %s for frames on port %d\n", *device, *port)

	dumper := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true}
	flows := make(map[gopacket.Flow]*flowBuffer)

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	for packet := range packetSource.Packets() {
		tcpLayer := packet.Layer(layers.LayerTypeTCP)
		if tcpLayer == nil {
			continue
		}
		tcp := tcpLayer.(*layers.TCP)
		if len(tcp.Payload) == 0 {
			continue
		}

		flow := packet.TransportLayer().TransportFlow()
		buf, ok := flows[flow]
		if !ok {
			buf = &flowBuffer{toServer: int(tcp.DstPort) == *port}
			flows[flow] = buf
		}
		buf.data = append(buf.data, tcp.Payload...)

		for {
			payload, rest, ok := nextFrame(buf.data)
			if !ok {
				break
			}
			buf.data = rest
			printMessage(&dumper, buf.toServer, payload)
		}
	}
}

// nextFrame splits one length-prefixed frame off the front of data.
func nextFrame(data []byte) (payload, rest []byte, ok bool) {
	if len(data) < 4 {
		return nil, data, false
	}
	length := int(data[0])<<24 | int(data[1])<<16 | int(data[2])<<8 | int(data[3])
	if len(data) < 4+length {
		return nil, data, false
	}
	return data[4 : 4+length], data[4+length:], true
}

func printMessage(dumper *spew.ConfigState, toServer bool, payload []byte) {
	var (
		msg interface{}
		err error
	)
	if toServer {
		msg, err = protocol.DecodeClient(payload)
	} else {
		msg, err = protocol.DecodeServer(payload)
	}
	if err != nil {
		fmt.Printf("undecodable %d-byte payload: %v\n", len(payload), err)
		return
	}

	direction := "server -> client"
	if toServer {
		direction = "client -> server"
	}
	fmt.Printf("[%s] %s", direction, dumper.Sdump(msg))
}

func exit(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
