package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_Submit(t *testing.T) {
	p := New(4)
	defer p.Close()

	var counter int64
	for i := 0; i < 100; i++ {
		p.Submit(func() {
			atomic.AddInt64(&counter, 1)
		})
	}
	p.Wait()

	if counter != 100 {
		t.Errorf("Expected 100, got %d", counter)
	}
}

func TestPool_WaitCoversNestedSubmits(t *testing.T) {
	p := New(2)
	defer p.Close()

	var counter int64
	for i := 0; i < 10; i++ {
		p.Submit(func() {
			atomic.AddInt64(&counter, 1)
			p.Submit(func() {
				time.Sleep(time.Millisecond)
				atomic.AddInt64(&counter, 1)
			})
		})
	}
	p.Wait()

	if got := atomic.LoadInt64(&counter); got != 20 {
		t.Errorf("Expected 20 after Wait, got %d", got)
	}
}

func TestPool_Running(t *testing.T) {
	p := New(4)
	defer p.Close()

	blocker := make(chan struct{})
	for i := 0; i < 4; i++ {
		p.Submit(func() {
			<-blocker
		})
	}

	time.Sleep(10 * time.Millisecond)

	if running := p.Running(); running != 4 {
		t.Errorf("Expected 4 running workers, got %d", running)
	}

	close(blocker)
}

func TestPool_Close(t *testing.T) {
	p := New(4)

	var counter int64
	for i := 0; i < 50; i++ {
		p.Submit(func() {
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&counter, 1)
		})
	}

	p.Close()

	if counter != 50 {
		t.Errorf("Expected all 50 tasks to complete, got %d", counter)
	}
	if !p.IsClosed() {
		t.Error("Pool should be closed")
	}
	if p.Submit(func() {}) {
		t.Error("Submit should fail after Close")
	}
	p.Close() // idempotent
}

func TestPool_PanicRecovery(t *testing.T) {
	p := New(1)
	defer p.Close()

	p.Submit(func() { panic("boom") })

	var ran atomic.Bool
	p.Submit(func() { ran.Store(true) })
	p.Wait()

	if !ran.Load() {
		t.Error("task after a panicking task should still run")
	}
	if p.Panics() != 1 {
		t.Errorf("Expected 1 recorded panic, got %d", p.Panics())
	}
}

func TestPool_OverflowDoesNotBlock(t *testing.T) {
	p := New(1)
	defer p.Close()

	blocker := make(chan struct{})
	var wg sync.WaitGroup
	total := p.Cap()*16 + 10
	wg.Add(total)
	for i := 0; i < total; i++ {
		p.Submit(func() {
			defer wg.Done()
			<-blocker
		})
	}

	if p.Overflowed() == 0 {
		t.Error("expected some tasks to overflow the queue")
	}
	close(blocker)
	wg.Wait()
}

func TestPool_NilTask(t *testing.T) {
	p := New(1)
	defer p.Close()
	if p.Submit(nil) {
		t.Error("nil task must be rejected")
	}
}

func TestPool_SubmitDuringWait(t *testing.T) {
	p := New(4)
	defer p.Close()

	const producers, perProducer = 4, 250
	var counter int64
	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				p.Submit(func() { atomic.AddInt64(&counter, 1) })
			}
		}()
	}

	stop := make(chan struct{})
	waiters := make(chan struct{})
	go func() {
		defer close(waiters)
		for {
			select {
			case <-stop:
				return
			default:
				p.Wait()
			}
		}
	}()

	wg.Wait()
	p.Wait()
	close(stop)
	<-waiters

	if got := atomic.LoadInt64(&counter); got != producers*perProducer {
		t.Errorf("Expected %d, got %d", producers*perProducer, got)
	}
	if n := p.Pending(); n != 0 {
		t.Errorf("Expected no pending tasks, got %d", n)
	}
}
