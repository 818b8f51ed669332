// Command grpcchanneldemo is a smoke-test CLI for grpcchannel: it
// dials a target, issues one unary call with a raw payload, and
// prints the reply.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/grpcrt/grpcchannel"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

type rawCodec struct{}

func (rawCodec) Serialize(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("grpcchanneldemo: unsupported payload type %T", v)
	}
	return b, nil
}

func (rawCodec) Deserialize(data []byte, target any) error {
	p, ok := target.(*[]byte)
	if !ok {
		return fmt.Errorf("grpcchanneldemo: unsupported target type %T", target)
	}
	*p = data
	return nil
}

func main() {
	target := flag.String("target", "localhost:50051", "dial target")
	method := flag.String("method", "", "fully-qualified RPC method, e.g. /pkg.Service/Method")
	payload := flag.String("payload", "", "raw request payload")
	insecureConn := flag.Bool("insecure", true, "dial in plaintext without TLS (no other credentials are supported)")
	timeout := flag.Duration("timeout", 10*time.Second, "call timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *method == "" {
		logger.Error("missing -method")
		os.Exit(2)
	}

	var creds credentials.TransportCredentials
	if *insecureConn {
		creds = insecure.NewCredentials()
	}

	ch, err := grpcchannel.NewChannel(*target, rawCodec{}, grpcchannel.WithDialOption(grpc.WithTransportCredentials(creds)))
	if err != nil {
		logger.Error("dial failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = ch.Shutdown(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	data, status, err := ch.Call(ctx, *method, []byte(*payload))
	if err != nil {
		logger.Error("call failed", "error", err)
		os.Exit(1)
	}
	if !status.OK() {
		logger.Error("rpc failed", "status", status.String())
		os.Exit(1)
	}

	fmt.Println(string(data))
}
