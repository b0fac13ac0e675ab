/*
Package deque provides the lock-free work-stealing deque used by forkjoin
workers.

The deque follows the Chase-Lev design: an array-backed ring with two
indices. The owner pushes and pops at bottom without synchronization beyond
atomic loads and stores; any number of thieves take from top with a single
compare-and-swap. The only owner-side CAS happens when exactly one element
remains and the owner must race thieves for it.

	d, _ := deque.New[Task](32)

	// owner goroutine
	d.PushBottom(task)
	if t, ok := d.PopBottom(); ok {
		run(t)
	}

	// any other goroutine
	if t, ok := d.Steal(); ok {
		run(t)
	}

Growth:

When the ring is full, PushBottom allocates a ring twice as large, copies
the live range [top, bottom) and publishes it atomically. Rings never shrink.
A thief that loaded the old ring still reads a valid element for its index
and its CAS on top decides whether the claim counts.

Empty results:

PopBottom and Steal report ok == false when nothing could be claimed. This is
a normal outcome. Steal also reports false after losing a race to another
thief or to the owner; it never retries internally.
*/
package deque
