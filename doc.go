// Package flashguard holds the pieces shared by the read-side cache and the
// flash-sale admission pipeline: the error taxonomy, a tiny leveled Logger
// and the Hooks event interface.
//
// Components:
//   - cache: cache-aside client with penetration protection (negative markers)
//     and breakdown protection (logical expiry + single-flight async rebuild).
//   - lock: lease-based mutual exclusion over Redis (SET NX PX / compare-and-delete).
//   - seckill: atomic admission script, stream-backed order queue and the order
//     worker with pending-list crash recovery.
//
// Keys:
//
//	cache:<ns>:<key>            - cache entries (see internal/wire)
//	gen:cache:<ns>:<key>        - generation counters (genstore.Redis)
//	rebuild:<ns>:<key>          - rebuild lock names
//	lock:<name>                 - lock leases
//	seckill:stock:<resource>    - mirrored stock counter
//	seckill:window:<resource>   - mirrored active window (begin/end unix ms)
//	seckill:order:<resource>    - requester markers (set)
//	stream.orders               - reservation stream
//	icr:<ns>:<yyyy:MM:dd>       - daily id counters (idgen.Redis)
//
// Request flow:
//
//	res, err := svc.ReserveAndSubmit(ctx, seckill.Requester{ID: uid}, resourceID)
//	// res.Accepted => order committed asynchronously by seckill.Worker
package flashguard
