// Package vsslink is a client SDK for VSS databrokers: vehicle signal
// discovery, typed reads and writes, actuator serving and live value
// subscriptions over NATS.
//
// # Architecture
//
// The SDK is layered bottom up:
//
//	┌─────────────────────────────────────┐
//	│            client.Client            │  Provider + subscriber loops,
//	│   (serve actuators, subscribe,      │  synchronous read/write API
//	│    get/set/publish, typed API)      │
//	└─────────────────────────────────────┘
//	           ↓ resolves through
//	┌─────────────────────────────────────┐
//	│          resolver.Resolver          │  Path → handle resolution,
//	│                                     │  metadata cache
//	└─────────────────────────────────────┘
//	           ↓ speaks
//	┌─────────────────────────────────────┐
//	│            broker.RPC               │  Wire types, request/reply
//	│   (Conn, Client, streams)           │  and streams over NATS
//	└─────────────────────────────────────┘
//
// Connection lifecycle for both client loops is tracked by connstate,
// built on the generic state machine in pkg/fsm.
//
// # Packages
//
//   - vss: signal values, qualities, handles and the VSS type system
//   - broker: NATS transport, wire codec and the RPC surface
//   - resolver: metadata resolution with caching and type checking
//   - client: the unified databroker client
//   - connstate: connection lifecycle state machine
//   - config: YAML configuration with environment overrides
//   - metric: Prometheus metrics and registry
//   - errors: coded SDK errors and classification predicates
//   - brokertest: in-memory broker fake and NATS container helper
//   - pkg/fsm: generic thread-safe finite state machine
//   - pkg/retry: retry policies and reconnect backoff
//
// # Usage
//
// Serve an actuator and subscribe to a sensor:
//
//	conn, _ := broker.NewConn("nats://localhost:4222")
//	_ = conn.Connect(ctx)
//
//	c := client.New(broker.NewClient(conn))
//	trunk, _ := c.Resolver().Resolve(ctx, "Vehicle.Body.Trunk.Rear.IsOpen")
//	speed, _ := c.Resolver().Resolve(ctx, "Vehicle.Speed")
//
//	_ = c.ServeActuator(*trunk, func(v vss.Value) {
//		// drive the hardware, then report the new position
//	})
//	_ = c.Subscribe(*speed, func(qv vss.QualifiedValue) {
//		// react to speed updates
//	})
//
//	_ = c.Start()
//	defer c.Stop()
//
// The typed API removes manual value handling where the Go type is known
// at compile time:
//
//	speed, _ := resolver.ResolveTyped[float32](ctx, c.Resolver(), "Vehicle.Speed")
//	kmh, _ := client.GetTyped(ctx, c, speed)
package vsslink
