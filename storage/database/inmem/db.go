package inmemdb

import (
	"sync"

	"github.com/trezcool/cheti/core/certificate"
)

type (
	DB struct {
		certificate *certificateTables
	}

	certificateTables struct {
		partitions   map[string]*certificate.Partition   // {id: partition}
		certificates map[string]*certificate.Certificate // {id: certificate}
		sequences    map[string]int                      // {partition id: last value}
		mutex        sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		certificate: &certificateTables{
			partitions:   make(map[string]*certificate.Partition),
			certificates: make(map[string]*certificate.Certificate),
			sequences:    make(map[string]int),
		},
	}
}
