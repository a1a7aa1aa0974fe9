package logging

import (
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Field helpers for names used throughout the search pipeline
func Component(name string) Field {
	return String("component", name)
}

func RunID(id string) Field {
	return String("run_id", id)
}

func Trial(index int) Field {
	return Int("trial", index)
}

func Trials(n int) Field {
	return Int("trials", n)
}

func Workers(n int) Field {
	return Int("workers", n)
}

func Engine(name string) Field {
	return String("engine", name)
}

func Modularity(q float64) Field {
	return Float64("modularity", q)
}

func Nodes(n int) Field {
	return Int("nodes", n)
}

func EdgesCount(n int) Field {
	return Int("edges", n)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}
