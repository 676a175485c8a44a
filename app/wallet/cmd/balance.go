package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

type balanceResponse struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Balance uint64 `json:"balance"`
}

// balanceCmd represents the balance command
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance.",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}
		address := crypto.PubkeyToAddress(privateKey.PublicKey).String()
		fmt.Println("For address:", address)

		resp, err := http.Get(fmt.Sprintf("%s/v1/balance/%s", url, address))
		if err != nil {
			log.Fatal(err)
		}
		defer resp.Body.Close()

		var bal balanceResponse
		if err := json.NewDecoder(resp.Body).Decode(&bal); err != nil {
			log.Fatal(err)
		}
		fmt.Println(bal.Balance)
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
}
