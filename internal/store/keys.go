package store

import "fmt"

// recordKey and Bucket.key centralize the store's keyspace so the API and
// Worker packages cannot diverge on the format (see SPEC_FULL.md §9,
// "string-literal queue key composition").

func recordKey(id string) string {
	return fmt.Sprintf("jobservitor:%s", id)
}

// Bucket identifies one affinity queue by its (gpu_type, dc, region) triple.
type Bucket struct {
	GPUType GPUType
	DC      string
	Region  string
}

func (b Bucket) key() string {
	return fmt.Sprintf("jobservitor:queue:%s:%s:%s", b.GPUType, b.DC, b.Region)
}

// Cascade returns the four buckets a worker dequeues from, in the strict
// order §4.3 specifies: best affinity match first, relaxing one axis at a
// time until the fully global pool.
func Cascade(gpuType GPUType, dc, region string) []Bucket {
	return []Bucket{
		{GPUType: gpuType, DC: dc, Region: region},
		{GPUType: GPUAny, DC: dc, Region: region},
		{GPUType: GPUAny, DC: dc, Region: AnyTag},
		{GPUType: GPUAny, DC: AnyTag, Region: AnyTag},
	}
}
