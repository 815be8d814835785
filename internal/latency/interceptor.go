// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package latency

import (
	"context"
	"path"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"k8s.io/klog/v2"
)

const (
	// MetadataKey is the key in the metadata that allows users to specify latency injection.
	MetadataKey = "latency"

	// RPCPrefix prefixes the names of samples recorded by the interceptors.
	RPCPrefix = "rpc/"
)

// Delay reads latency from context metadata. If multiple values are present
// for MetadataKey, it uses the first value and logs a warning.
func Delay(ctx context.Context) (time.Duration, bool) {
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		md, ok = metadata.FromIncomingContext(ctx)
	}
	if !ok {
		return 0, false
	}
	vals := md.Get(MetadataKey)
	if len(vals) == 0 {
		return 0, false
	}
	if len(vals) > 1 {
		klog.Warningf("Multiple values for %q in metadata: %v, using %q", MetadataKey, vals, vals[0])
	}
	d, err := time.ParseDuration(vals[0])
	if err != nil {
		klog.Warningf("Invalid latency format in metadata: %s. Error: %v", vals[0], err)
		return 0, false
	}
	return d, true
}

// WithDelay returns a context that asks the interceptors to delay calls by d.
func WithDelay(ctx context.Context, d time.Duration) context.Context {
	return metadata.AppendToOutgoingContext(ctx, MetadataKey, d.String())
}

// RPCName returns the sample name recorded for a gRPC method, e.g.
// "rpc/SetConfig" for "/otg.Openapi/SetConfig".
func RPCName(method string) string {
	return RPCPrefix + path.Base(method)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UnaryClientInterceptor returns a UnaryClientInterceptor that records the
// duration of every call in rec. A latency requested through MetadataKey is
// injected before the call and counted in the sample.
func UnaryClientInterceptor(rec *Recorder) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		defer rec.Timer(time.Now(), RPCName(method))
		if delay, ok := Delay(ctx); ok {
			klog.V(2).Infof("Injecting latency %v for method %s", delay, method)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor returns a StreamClientInterceptor that records the
// time taken to open each stream in rec, and delays every received message
// by a latency requested through MetadataKey.
func StreamClientInterceptor(rec *Recorder) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		start := time.Now()
		delay, ok := Delay(ctx)
		clientStream, err := streamer(ctx, desc, cc, method, opts...)
		rec.Timer(start, RPCName(method))
		if err != nil {
			return nil, err
		}
		if ok {
			klog.V(2).Infof("Injecting latency %v for method %s", delay, method)
			return &latencyClientStream{ClientStream: clientStream, delay: delay}, nil
		}
		return clientStream, nil
	}
}

type latencyClientStream struct {
	grpc.ClientStream
	delay time.Duration
}

func (l *latencyClientStream) RecvMsg(m any) error {
	if l.delay > 0 {
		if err := sleep(l.ClientStream.Context(), l.delay); err != nil {
			return err
		}
	}
	return l.ClientStream.RecvMsg(m)
}
