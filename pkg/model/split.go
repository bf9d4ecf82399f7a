package model

import (
	"math"
	"math/rand"

	"github.com/mchmarny/agepulse/pkg/errs"
)

// TrainTestSplit partitions row indexes 0..n-1. The test share is
// ceil(testSize*n) and the permutation is drawn from seed, so the same
// seed and n always give the same split.
func TrainTestSplit(n int, testSize float64, seed int64) (train, test []int, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, errs.Config("test size must be in (0, 1), got %v", testSize)
	}

	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest <= 0 || nTrain <= 0 {
		return nil, nil, errs.DataQuality("cannot split %d rows with test size %v", n, testSize)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	test = perm[:nTest]
	train = perm[nTest:]
	return train, test, nil
}
