/*
Package block reconstructs vehicle duties from the static schedule and decides
which trip a vehicle is working at a given moment.

A Block is every trip sharing one block_id and one service_id, ordered by the
earliest stop-time arrival. Sub-trips the feed splits in two (same headsign,
shape, direction and display code, where one ends exactly when the next
begins) are merged back into one BlockTrip that lists every constituent trip
id.

	b, ok := block.Build(index, "1234567")
	r := block.DefaultResolver()
	advice, ok := r.Advise(b, vehicle.Adherence, gtfs.SecondsSinceMidnight(now, loc))
	switch advice.State {
	case block.OnLayover:
	    // until advice.Layover.Next.FirstArrives
	}

All times are seconds from the service day's local midnight. GTFS times run
past 86400, so a vehicle clock of 00:02 can match a trip scheduled for
24:02:00. NormalizeToServiceDay is the single place that decides when a clock
reading belongs to the previous service day.
*/
package block
