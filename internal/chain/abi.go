package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const dropJSON = `[
{"type":"function","name":"getActiveClaimConditionId","stateMutability":"view",
 "inputs":[{"name":"_tokenId","type":"uint256"}],
 "outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getClaimConditionById","stateMutability":"view",
 "inputs":[{"name":"_tokenId","type":"uint256"},{"name":"_conditionId","type":"uint256"}],
 "outputs":[{"name":"condition","type":"tuple","components":[
   {"name":"startTimestamp","type":"uint256"},
   {"name":"maxClaimableSupply","type":"uint256"},
   {"name":"supplyClaimed","type":"uint256"},
   {"name":"quantityLimitPerWallet","type":"uint256"},
   {"name":"merkleRoot","type":"bytes32"},
   {"name":"pricePerToken","type":"uint256"},
   {"name":"currency","type":"address"},
   {"name":"metadata","type":"string"}]}]},
{"type":"function","name":"getSupplyClaimedByWallet","stateMutability":"view",
 "inputs":[{"name":"_tokenId","type":"uint256"},{"name":"_conditionId","type":"uint256"},{"name":"_claimer","type":"address"}],
 "outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"name","stateMutability":"view",
 "inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

const erc20JSON = `[
{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"balanceOf","stateMutability":"view",
 "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"allowance","stateMutability":"view",
 "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"approve","stateMutability":"nonpayable",
 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const claimV3JSON = `[
{"type":"function","name":"claim","stateMutability":"payable",
 "inputs":[
   {"name":"_receiver","type":"address"},
   {"name":"_tokenId","type":"uint256"},
   {"name":"_quantity","type":"uint256"},
   {"name":"_currency","type":"address"},
   {"name":"_pricePerToken","type":"uint256"},
   {"name":"_allowlistProof","type":"tuple","components":[
     {"name":"proof","type":"bytes32[]"},
     {"name":"quantityLimitPerWallet","type":"uint256"},
     {"name":"pricePerToken","type":"uint256"},
     {"name":"currency","type":"address"}]},
   {"name":"_data","type":"bytes"}],
 "outputs":[]}
]`

const claimV2JSON = `[
{"type":"function","name":"claim","stateMutability":"payable",
 "inputs":[
   {"name":"_receiver","type":"address"},
   {"name":"_tokenId","type":"uint256"},
   {"name":"_quantity","type":"uint256"},
   {"name":"_currency","type":"address"},
   {"name":"_pricePerToken","type":"uint256"},
   {"name":"_proofs","type":"bytes32[]"},
   {"name":"_proofMaxQuantityPerTransaction","type":"uint256"}],
 "outputs":[]}
]`

const mintToJSON = `[
{"type":"function","name":"mintTo","stateMutability":"payable",
 "inputs":[
   {"name":"_to","type":"address"},
   {"name":"_tokenId","type":"uint256"},
   {"name":"_amount","type":"uint256"}],
 "outputs":[]}
]`

var (
	dropABI   = mustParse(dropJSON)
	erc20ABI  = mustParse(erc20JSON)
	claimV3   = mustParse(claimV3JSON)
	claimV2   = mustParse(claimV2JSON)
	mintToABI = mustParse(mintToJSON)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
