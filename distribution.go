package togglekit

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
)

const bucketSize = 10000

// saltHash maps a (key, salt) pair to a bucket in [0, size). The exact
// construction is a cross-SDK contract: SHA-1 over key+salt, last 4 bytes of
// the digest as a big-endian u32, modulo size. saltHash("key","salt",10000)
// must equal 2647.
func saltHash(key, salt string, size uint32) uint32 {
	sum := sha1.Sum([]byte(key + salt))
	return binary.BigEndian.Uint32(sum[len(sum)-4:]) % size
}

// findIndex resolves the variation index for the evaluated user: pick the
// hash key (bucketBy attribute or the user's stable rollout key), salt it,
// and look the bucket up in the range table.
func (d *Distribution) findIndex(p *evalParams) (int, error) {
	hashKey := p.user.Key()
	if d.BucketBy != "" {
		v, ok := p.user.Get(d.BucketBy)
		if !ok {
			if p.isDetail {
				return 0, &EvalDetailError{Message: fmt.Sprintf(
					"User with key:%q does not have attribute named: [%s]", hashKey, d.BucketBy)}
			}
			return 0, ErrEval
		}
		hashKey = v
	}

	salt := d.Salt
	if salt == "" {
		salt = p.key
	}

	bucket := saltHash(hashKey, salt, bucketSize)

	index, ok := d.lookupBucket(bucket)
	if !ok {
		if p.isDetail {
			return 0, &EvalDetailError{Message: "not find hash_bucket in distribution."}
		}
		return 0, ErrEval
	}
	return index, nil
}

// lookupBucket returns the index of the first variation whose range list
// contains the bucket. Gaps are legal and report no match.
func (d *Distribution) lookupBucket(bucket uint32) (int, bool) {
	for i, ranges := range d.Distribution {
		for _, r := range ranges {
			if r.Lower <= bucket && bucket < r.Upper {
				return i, true
			}
		}
	}
	return 0, false
}
