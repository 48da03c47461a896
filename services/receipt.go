package services

import (
	"time"

	"medseal/models"
)

// BuildReceipt erstellt eine simulierte Transaktionsquittung für einen
// Digest. Es findet keine Chain-Interaktion statt; gleiche Eingaben ergeben
// die gleiche Quittung, Adressen werden aus dem Digest abgeleitet.
func BuildReceipt(digest string, now time.Time) *models.Receipt {
	return &models.Receipt{
		Network:         "Ethereum Sepolia Testnet",
		TransactionHash: "0x" + digest,
		BlockNumber:     now.Unix() % 1000000,
		Timestamp:       now.UTC().Format(time.RFC3339),
		From:            "0x" + digest[:40],
		To:              "0x" + digest[24:],
		GasUsed:         "21000",
		Status:          "success",
		Note:            "SIMULATED - not a real blockchain transaction",
	}
}
